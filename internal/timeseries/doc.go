// Package timeseries stores accepted samples as monthly CSV partitions,
// one per device, and reads them back for the history and export views.
//
// Partition membership is decided by the calendar month of the sample
// timestamp in the site timezone. Every partition starts with the fixed
// header in Fields, regardless of which metrics a given sample carried.
package timeseries

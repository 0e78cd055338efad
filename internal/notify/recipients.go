package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/nerrad567/solarwatch-core/internal/recordstore"
)

// Sender defaults used when the recipients record leaves them blank.
const (
	DefaultFromName = "Solar MPPT Monitor"
	DefaultFromMail = "no-reply@example.com"
)

// Recipients is the alert_recipients.json record.
type Recipients struct {
	Emails   []string `json:"emails"`
	FromName string   `json:"from_name,omitempty"`
	FromMail string   `json:"from_mail,omitempty"`
}

// Sender returns the display name and address to send from.
func (r Recipients) Sender() (name, address string) {
	name, address = r.FromName, r.FromMail
	if strings.TrimSpace(name) == "" {
		name = DefaultFromName
	}
	if strings.TrimSpace(address) == "" {
		address = DefaultFromMail
	}
	return name, address
}

// Sanitise trims addresses, drops empty and unparsable ones and removes
// duplicates (case-insensitive), keeping the first occurrence. The result
// is never nil.
func Sanitise(emails []string) []string {
	out := make([]string, 0, len(emails))
	seen := make(map[string]bool, len(emails))
	for _, e := range emails {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		addr, err := mail.ParseAddress(e)
		if err != nil {
			continue
		}
		key := strings.ToLower(addr.Address)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, addr.Address)
	}
	return out
}

// RecipientStore reads and edits the recipients record.
type RecipientStore struct {
	records recordstore.Records
	key     string
}

// NewRecipientStore creates a RecipientStore over the record at key.
func NewRecipientStore(records recordstore.Records, key string) *RecipientStore {
	return &RecipientStore{records: records, key: key}
}

// Get returns the recipients. A missing record yields an empty list; the
// email list is sanitised on the way out.
func (s *RecipientStore) Get(ctx context.Context) (Recipients, error) {
	body, err := s.records.Get(ctx, s.key)
	if errors.Is(err, recordstore.ErrNotFound) {
		return Recipients{Emails: []string{}}, nil
	}
	if err != nil {
		return Recipients{Emails: []string{}}, err
	}
	var r Recipients
	if err := json.Unmarshal(body, &r); err != nil {
		return Recipients{Emails: []string{}}, fmt.Errorf("decoding %s: %w", s.key, err)
	}
	r.Emails = Sanitise(r.Emails)
	return r, nil
}

// SetEmails replaces the email list with its sanitised form and returns the
// stored list. Existing sender fields are kept; blank ones get the defaults.
func (s *RecipientStore) SetEmails(ctx context.Context, emails []string) ([]string, error) {
	clean := Sanitise(emails)
	err := s.records.ReadModifyWrite(ctx, s.key, func(current []byte) ([]byte, error) {
		var r Recipients
		if len(current) > 0 {
			// A corrupt record loses only its sender fields.
			_ = json.Unmarshal(current, &r) //nolint:errcheck // replaced below
		}
		r.Emails = clean
		r.FromName, r.FromMail = r.Sender()
		return json.MarshalIndent(r, "", "    ")
	})
	if err != nil {
		return nil, err
	}
	return clean, nil
}

package watchdog

import (
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/solarwatch-core/internal/notify"
)

const displayLayout = "2006-01-02 15:04:05"

// alertText renders the subject and body of an alert. Times are shown in loc.
func alertText(prefix, kind string, st State, now time.Time, loc *time.Location) (subject, body string) {
	lastSeen := time.Unix(st.LastSeenTS, 0).In(loc).Format(displayLayout)
	at := now.In(loc).Format(displayLayout)

	var b strings.Builder
	if kind == notify.KindOffline {
		subject = fmt.Sprintf("Offline detected: %s %s", st.ID, st.Name)
		b.WriteString("A device has stopped reporting.\n\n")
		fmt.Fprintf(&b, "ID: %s\nName: %s\nLast received: %s\n", st.ID, st.Name, lastSeen)
		fmt.Fprintf(&b, "Silent for: %d s\nGrace period: %d s\n", st.AgeSec, st.OfflineGraceSec)
	} else {
		subject = fmt.Sprintf("Recovered: %s %s", st.ID, st.Name)
		b.WriteString("A device has resumed reporting.\n\n")
		fmt.Fprintf(&b, "ID: %s\nName: %s\nLast received: %s\n", st.ID, st.Name, lastSeen)
	}
	fmt.Fprintf(&b, "\nTime: %s\n", at)

	if prefix != "" {
		subject = prefix + " " + subject
	}
	return subject, b.String()
}

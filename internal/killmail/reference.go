package killmail

import (
	"errors"
	"regexp"
	"strconv"
)

// ErrNoReference is returned when a mail body contains no recognizable
// killmail reference.
var ErrNoReference = errors.New("killmail: no killmail reference found")

var (
	// In-game kill report link, e.g. killReport:123456789:abc...def. Carries
	// the hash, so the canonical record can be fetched without a lookup call.
	killReportPattern = regexp.MustCompile(`killReport:(\d+):([0-9a-fA-F]{40})`)

	// zKillboard web link, e.g. https://zkillboard.com/kill/123456789/.
	// Id only; the hash has to be looked up.
	zkillPattern = regexp.MustCompile(`zkillboard\.com/kill/(\d+)`)
)

// Reference is an extracted killmail reference. Hash is empty for web links.
type Reference struct {
	KillmailID int64
	Hash       string
}

// ExtractReference returns the first killmail reference in text, preferring
// the in-game report form because its embedded hash saves a lookup call.
func ExtractReference(text string) (Reference, error) {
	if m := killReportPattern.FindStringSubmatch(text); m != nil {
		id, err := strconv.ParseInt(m[1], 10, 64)
		if err == nil {
			return Reference{KillmailID: id, Hash: m[2]}, nil
		}
	}
	if m := zkillPattern.FindStringSubmatch(text); m != nil {
		id, err := strconv.ParseInt(m[1], 10, 64)
		if err == nil {
			return Reference{KillmailID: id}, nil
		}
	}
	return Reference{}, ErrNoReference
}

// CountReferences counts the distinct killmail ids referenced in text. The
// eligibility rules require exactly one loss per message.
func CountReferences(text string) int {
	ids := make(map[int64]struct{})
	for _, m := range killReportPattern.FindAllStringSubmatch(text, -1) {
		if id, err := strconv.ParseInt(m[1], 10, 64); err == nil {
			ids[id] = struct{}{}
		}
	}
	for _, m := range zkillPattern.FindAllStringSubmatch(text, -1) {
		if id, err := strconv.ParseInt(m[1], 10, 64); err == nil {
			ids[id] = struct{}{}
		}
	}
	return len(ids)
}

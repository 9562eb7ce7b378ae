// Package gateway classifies raw lines emitted by the GSM modem bridge.
package gateway

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/septivank/buoy-telemetry/internal/parser"
	"github.com/septivank/buoy-telemetry/internal/validator"
)

const (
	newSMSIndicator = "+CMTI:"
	smsDelivery     = "+CMT:"
)

var cmtiRe = regexp.MustCompile(`\+CMTI: "SM",(\d+)`)

// Envelope is a modem line reduced to what the ingestion service needs.
type Envelope struct {
	Content string `json:"content"`
	Kind    string `json:"type"`
}

// Classify maps a modem line to an Envelope. New-SMS indications become
// notifications; delivered SMS bodies are cut down to the text after the
// content marker.
func Classify(line string) Envelope {
	line = strings.TrimSpace(line)

	switch {
	case strings.Contains(line, newSMSIndicator):
		if m := cmtiRe.FindStringSubmatch(line); m != nil {
			return Envelope{Content: fmt.Sprintf("New SMS received at index %s", m[1]), Kind: validator.KindNotification}
		}
		return Envelope{Content: line, Kind: validator.KindNotification}
	case strings.Contains(line, smsDelivery):
		if _, after, found := strings.Cut(line, parser.ContentMarker); found {
			return Envelope{Content: strings.TrimSpace(after), Kind: validator.KindMessage}
		}
		return Envelope{Content: line, Kind: validator.KindMessage}
	default:
		return Envelope{Content: line, Kind: validator.KindMessage}
	}
}

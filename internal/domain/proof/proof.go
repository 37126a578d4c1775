// Package proof defines the OperationalProof entity: unstructured evidence
// (emails, gate logs, maintenance chats) used as fallback when a service
// invoice arrives without a service entry sheet.
package proof

import "time"

// OperationalProof is a single unstructured evidence record.
type OperationalProof struct {
	ID      int       `json:"id"`
	Source  string    `json:"source"` // email, gate_log, chat
	Content string    `json:"content"`
	Date    time.Time `json:"date"`
}

// -----------------------------------------------------------------------
// Network telemetry - per-connection request logs
// -----------------------------------------------------------------------

package models

import "time"

// NetworkLog is one observed request, keyed by the connection it rode on.
// Investigation captures write these; the network-security collector reads
// them back for beaconing and tunnel analysis.
type NetworkLog struct {
	ID            uint64    `json:"id" badgerhold:"key"`
	UserID        string    `json:"user_id" badgerhold:"index"`
	JobID         string    `json:"job_id" badgerhold:"index"`
	Target        string    `json:"target" badgerhold:"index"`
	ConnectionKey string    `json:"connection_key" badgerhold:"index"` // "<client host>-><server host>"
	Host          string    `json:"host"`
	URL           string    `json:"url"`
	Protocol      string    `json:"protocol"`
	Status        int       `json:"status"`
	Bytes         int64     `json:"bytes"`
	MimeType      string    `json:"mime_type"`
	ObservedAt    time.Time `json:"observed_at"`
}

// ConnKey builds the canonical connection key for a client/server pair
func ConnKey(client, server string) string {
	return client + "->" + server
}

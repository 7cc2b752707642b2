package models

import "encoding/json"

// SearchResult is the aggregated answer of a federated search for one data type.
type SearchResult struct {
	ServiceID  string          `json:"service_id"`
	DataTypeID string          `json:"data_type_id"`
	Results    json.RawMessage `json:"results"`
	ReceivedAt string          `json:"received_at,omitempty"`
}

func (r SearchResult) EntityID() string { return r.ServiceID + "/" + r.DataTypeID }

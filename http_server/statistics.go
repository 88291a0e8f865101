package http_server

import (
	"encoding/json"
	"net/http"
)

type Statistics struct {
	Received      int64 `json:"received"`
	Decrypted     int64 `json:"decrypted"`
	Invalid       int64 `json:"invalid"`
	Replayed      int64 `json:"replayed"`
	Limited       int64 `json:"limited"`
	BadRequests   int64 `json:"bad_requests"`
	OracleCalls   int64 `json:"oracle_calls"`
	ReplayEntries int   `json:"replay_entries"`
}

func (c *HttpServer) Statistics() Statistics {
	c.mtx.Lock()
	statistics := c.statistics
	c.mtx.Unlock()
	statistics.OracleCalls = c.counting.Calls()
	statistics.ReplayEntries = c.guard.Len()
	return statistics
}

func (c *HttpServer) processStat(w http.ResponseWriter, r *http.Request) {
	if !c.take(w, r) {
		return
	}
	bs, err := json.MarshalIndent(c.Statistics(), "", " ")
	if err != nil {
		c.writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(200)
	_, _ = w.Write(bs)
}

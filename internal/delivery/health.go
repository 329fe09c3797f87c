package delivery

import (
	"net/http"
	"time"

	"okeyonline/internal/httpresponse"
)

const Version = "1.0.0"

type HealthResponse struct {
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}

func Health(w http.ResponseWriter, _ *http.Request) {
	httpresponse.WriteJSON(w, http.StatusOK, HealthResponse{
		Status:    "OK",
		Message:   "OkeyOnline server is running",
		Timestamp: time.Now().UTC(),
		Version:   Version,
	})
}

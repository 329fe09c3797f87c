package httpresponse

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	errs "okeyonline/internal/errors"
)

type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

const INTERNALERRORJSON = "{\"success\":false,\"error\":\"Internal server error\"}"

const internalErrorDesc = "Internal server error"

func WriteJSON(w http.ResponseWriter, status int, body any) {
	jsonByte, err := json.Marshal(body)
	if err != nil {
		WriteInternalErrorResponse(w)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(jsonByte)
}

func WriteData(w http.ResponseWriter, status int, message string, data any) {
	WriteJSON(w, status, Response{Success: true, Message: message, Data: data})
}

func WriteErrorMessage(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, ErrorResponse{Success: false, Error: message})
}

// WriteError converts a domain error to its status code and public message.
// Unknown errors are reported as a generic internal error.
func WriteError(w http.ResponseWriter, err error) {
	status, message := StatusFromError(err)
	WriteErrorMessage(w, status, message)
}

func WriteInternalErrorResponse(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	_, _ = fmt.Fprintln(w, INTERNALERRORJSON)
}

func StatusFromError(err error) (int, string) {
	if err == nil {
		return http.StatusOK, ""
	}
	if errors.Is(err, errs.ErrValidation) {
		return http.StatusBadRequest, err.Error()
	}
	for _, m := range statusMap {
		if errors.Is(err, m.err) {
			if m.message != "" {
				return m.status, m.message
			}
			return m.status, m.err.Error()
		}
	}
	return http.StatusInternalServerError, internalErrorDesc
}

var statusMap = []struct {
	err     error
	status  int
	message string
}{
	{errs.ErrUserExists, http.StatusBadRequest, "username or email is already in use"},
	{errs.ErrUserNotFound, http.StatusNotFound, "user not found"},
	{errs.ErrWrongPassword, http.StatusBadRequest, "invalid credentials"},
	{errs.ErrUnauthorized, http.StatusUnauthorized, "Access denied"},
	{errs.ErrInvalidToken, http.StatusUnauthorized, "Invalid token"},
	{errs.ErrForbidden, http.StatusForbidden, ""},
	{errs.ErrNotInRoom, http.StatusForbidden, ""},
	{errs.ErrWrongRoomPassword, http.StatusForbidden, ""},
	{errs.ErrSpectatorsDisabled, http.StatusForbidden, ""},
	{errs.ErrRoomNotFound, http.StatusNotFound, ""},
	{errs.ErrRoomExists, http.StatusConflict, ""},
	{errs.ErrRoomFull, http.StatusBadRequest, ""},
	{errs.ErrAlreadyInRoom, http.StatusBadRequest, ""},
	{errs.ErrNotEnoughPlayers, http.StatusBadRequest, ""},
	{errs.ErrInvalidTransition, http.StatusBadRequest, ""},
	{errs.ErrVersionConflict, http.StatusConflict, "room is busy, try again"},
	{errs.ErrLockTimeout, http.StatusConflict, "room is busy, try again"},
}

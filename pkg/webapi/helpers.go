package webapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	lnurl "github.com/cashubtc/cashu-lnurl/pkg"
	log "github.com/sirupsen/logrus"
)

var httpCodeForError = map[string]int{
	string(lnurl.BadRequest):       400,
	string(lnurl.NotAvailable):     503,
	string(lnurl.NotFound):         404,
	string(lnurl.AlreadyExists):    409,
	string(lnurl.ProtocolMismatch): 502,
	string(lnurl.PersistenceError): 500,
	string(lnurl.ConfigError):      500,
	string(lnurl.UnknownError):     500,
}

func HttpStatusForError(code lnurl.ErrorCode) int {
	status, found := httpCodeForError[string(code)]
	if !found {
		status = http.StatusInternalServerError
	}
	return status
}

func sendResponse(w http.ResponseWriter, payload any) {
	// note: w.Header after this, so we can call sendError
	b, err := json.Marshal(payload)
	if err != nil {
		sendErrorResponse(w, http.StatusInternalServerError, lnurl.UnknownError, fmt.Sprintf("in json.Marshal: %s", err.Error()))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*") // LNURL wallets call from browsers
	w.Header().Set("Cache-Control", "no-store")        // do not cache (Browsers cache GET forever by default)
	w.Write(b)
}

func sendBadRequest(w http.ResponseWriter, message string) {
	sendErrorResponse(w, http.StatusBadRequest, lnurl.BadRequest, message)
}

func sendError(w http.ResponseWriter, where string, err error) {
	var info *lnurl.ErrorInfo
	if errors.As(err, &info) {
		status := HttpStatusForError(info.Code)
		message := fmt.Sprintf("%s: %s", where, info.Message)
		sendErrorResponse(w, status, info.Code, message)
	} else {
		message := fmt.Sprintf("%s: %s", where, err.Error())
		sendErrorResponse(w, http.StatusInternalServerError, lnurl.UnknownError, message)
	}
}

func sendErrorResponse(w http.ResponseWriter, statusCode int, code lnurl.ErrorCode, message string) {
	log.Warnf("[!] %s: %s", code, message)
	// would prefer to use json.Marshal, but this avoids the need
	// to handle encoding errors arising from json.Marshal itself!
	payload := fmt.Sprintf("{\"error\":{\"code\":%q,\"message\":%q}}", code, message)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Cache-Control", "no-store") // do not cache (Browsers cache GET forever by default)
	w.WriteHeader(statusCode)
	w.Write([]byte(payload))
}

// Package http provides the HTTP handlers and routing of the stamp
// verification server.
package http

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/atinyakov/smartstamp/internal/fingerprint"
	"github.com/atinyakov/smartstamp/internal/middleware"
	"github.com/atinyakov/smartstamp/internal/service"
)

// VerifyService defines the verification operation required by VerifyHandler.
type VerifyService interface {
	Verify(ctx context.Context, req service.VerifyRequest) (*service.VerifyResult, error)
}

// VerifyHandler serves stamp verification requests.
type VerifyHandler struct {
	// VerifyService performs authentication, matching and token issuance.
	VerifyService VerifyService
}

// VerifyRequest is the JSON payload of a verification request:
// five [x, y] pairs.
type VerifyRequest struct {
	Points [][]float64 `json:"points"`
}

// VerifyResponse is the JSON body of every verification response. Stamp,
// token and error metrics are only present for a valid stamp.
type VerifyResponse struct {
	Status   string   `json:"status"`
	StampID  string   `json:"stamp_id,omitempty"`
	JWTToken string   `json:"jwt_token,omitempty"`
	MSE      *float64 `json:"mse,omitempty"`
	MaxError *float64 `json:"max_error,omitempty"`
	Message  string   `json:"message"`
}

// Verify handles POST /api/v1/verify. The API key is taken from the context
// set by middleware.RequireAPIKey.
//
// Status codes: 200 valid; 400 malformed body, wrong point count, no match or
// out of tolerance; 403 bad key or no permissions; 500 anything else.
func (h *VerifyHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, VerifyResponse{Status: "invalid", Message: "invalid request body"})
		return
	}

	points := make([]fingerprint.Point, 0, len(req.Points))
	for _, p := range req.Points {
		if len(p) != 2 {
			writeJSON(w, http.StatusBadRequest, VerifyResponse{Status: "invalid", Message: "each point must be an [x, y] pair"})
			return
		}
		points = append(points, fingerprint.Point{X: p[0], Y: p[1]})
	}

	res, err := h.VerifyService.Verify(r.Context(), service.VerifyRequest{
		APIKey:    middleware.GetAPIKeyFromContext(r.Context()),
		Points:    points,
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		status, body := verifyError(err)
		writeJSON(w, status, body)
		return
	}

	writeJSON(w, http.StatusOK, VerifyResponse{
		Status:   "valid",
		StampID:  res.StampID,
		JWTToken: res.Token,
		MSE:      &res.MSE,
		MaxError: &res.MaxError,
		Message:  "stamp verified",
	})
}

func verifyError(err error) (int, VerifyResponse) {
	var rej *service.Rejection
	switch {
	case errors.Is(err, service.ErrUnauthorized):
		return http.StatusForbidden, VerifyResponse{Status: "invalid", Message: service.ErrUnauthorized.Error()}
	case errors.As(err, &rej) && errors.Is(err, service.ErrNoPermissions):
		return http.StatusForbidden, VerifyResponse{Status: "invalid", Message: rej.Reason}
	case errors.As(err, &rej):
		return http.StatusBadRequest, VerifyResponse{Status: "invalid", Message: rej.Reason}
	default:
		return http.StatusInternalServerError, VerifyResponse{Status: "error", Message: "internal server error"}
	}
}

// clientIP returns the peer address without port. With chi's RealIP in
// front, RemoteAddr already holds the forwarded client address.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

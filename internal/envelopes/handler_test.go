package envelopes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func newTestRouter(te *testEnv) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	api := r.Group("/api/v1")
	NewHandler(te.svc).RegisterRoutes(api)
	return r
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return out
}

func TestHandlerSubmitAndGet(t *testing.T) {
	te := newTestEnv(t)
	r := newTestRouter(te)

	w := doJSON(t, r, http.MethodPost, "/api/v1/envelopes", map[string]any{
		"title":      "NDA",
		"pdfKey":     "uploads/src.pdf",
		"ownerName":  "Olivia Owner",
		"ownerEmail": "owner@acme.test",
		"companyId":  "acme",
		"recipients": []map[string]any{
			{"email": "a@x.test", "name": "Alex", "role": "signer", "type": "external", "priority": 1},
		},
		"fields": []map[string]any{
			{"recipientEmail": "a@x.test", "type": "text", "width": 100, "height": 20},
		},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	created := decodeBody(t, w)
	envelopeID, _ := created["envelopeId"].(string)
	if envelopeID == "" {
		t.Fatal("missing envelopeId")
	}
	if created["status"] != "pending" {
		t.Fatalf("status = %v, want pending", created["status"])
	}

	w = doJSON(t, r, http.MethodGet, "/api/v1/envelopes/"+envelopeID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	agg := decodeBody(t, w)
	if agg["title"] != "NDA" {
		t.Fatalf("title = %v", agg["title"])
	}
	recipients, _ := agg["recipients"].([]any)
	if len(recipients) != 1 {
		t.Fatalf("recipients = %v", agg["recipients"])
	}
}

func TestHandlerSubmitRejectsMissingBody(t *testing.T) {
	te := newTestEnv(t)
	r := newTestRouter(te)

	w := doJSON(t, r, http.MethodPost, "/api/v1/envelopes", map[string]any{
		"pdfKey": "uploads/src.pdf",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	body := decodeBody(t, w)
	if errBody, ok := body["error"].(map[string]any); !ok || errBody["code"] != ErrorCodeValidation {
		t.Fatalf("body = %s", w.Body.String())
	}
}

func TestHandlerGetUnknownEnvelope(t *testing.T) {
	te := newTestEnv(t)
	r := newTestRouter(te)

	w := doJSON(t, r, http.MethodGet, "/api/v1/envelopes/nope", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestHandlerFillInvalidToken(t *testing.T) {
	te := newTestEnv(t)
	env := te.submit(t, SubmitInput{
		Recipients: []Recipient{signerAt("a@x.test", 1)},
		Fields:     []Field{textFieldFor("a@x.test")},
	})
	r := newTestRouter(te)

	w := doJSON(t, r, http.MethodPost, "/api/v1/envelopes/"+env.ID+"/fill", map[string]any{
		"token": "bogus",
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestHandlerFillAlreadyCompleted(t *testing.T) {
	te := newTestEnv(t)
	env := te.submit(t, SubmitInput{
		Recipients: []Recipient{signerAt("a@x.test", 1)},
		Fields:     []Field{textFieldFor("a@x.test")},
	})
	rcpt := te.recipientByEmail(t, env.ID, "a@x.test")
	te.fill(t, env.ID, "a@x.test")
	r := newTestRouter(te)

	w := doJSON(t, r, http.MethodPost, "/api/v1/envelopes/"+env.ID+"/fill", map[string]any{
		"token": rcpt.RoutingToken,
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", w.Code)
	}
	body := decodeBody(t, w)
	errBody, _ := body["error"].(map[string]any)
	if errBody["code"] != ErrorCodeAlreadyFilled {
		t.Fatalf("code = %v", errBody["code"])
	}
}

func TestHandlerTokenRoutes(t *testing.T) {
	te := newTestEnv(t)
	env := te.submit(t, SubmitInput{
		Recipients: []Recipient{signerAt("a@x.test", 1)},
		Fields:     []Field{textFieldFor("a@x.test")},
	})
	rcpt := te.recipientByEmail(t, env.ID, "a@x.test")
	r := newTestRouter(te)

	w := doJSON(t, r, http.MethodGet, "/api/v1/sign/"+rcpt.RoutingToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("validate status = %d", w.Code)
	}
	summary := decodeBody(t, w)
	if summary["envelopeId"] != env.ID {
		t.Fatalf("envelopeId = %v", summary["envelopeId"])
	}

	w = doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/v1/sign/%s/viewed", rcpt.RoutingToken), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("viewed status = %d", w.Code)
	}
	if te.recipientByEmail(t, env.ID, "a@x.test").Status != RecipientViewed {
		t.Fatal("recipient should be viewed")
	}

	// Decline requires a reason.
	w = doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/v1/sign/%s/decline", rcpt.RoutingToken), map[string]any{})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("decline without reason status = %d, want 400", w.Code)
	}

	w = doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/v1/sign/%s/decline", rcpt.RoutingToken), map[string]any{
		"reason": "not my contract",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("decline status = %d, body %s", w.Code, w.Body.String())
	}
	got, err := te.repo.GetEnvelope(context.Background(), env.ID)
	if err != nil || got.Status != StatusDeclined {
		t.Fatalf("envelope = %+v, %v", got, err)
	}
}

func TestHandlerVoidAndHistory(t *testing.T) {
	te := newTestEnv(t)
	env := te.submit(t, SubmitInput{
		Recipients: []Recipient{signerAt("a@x.test", 1)},
		Fields:     []Field{textFieldFor("a@x.test")},
	})
	r := newTestRouter(te)

	w := doJSON(t, r, http.MethodPost, "/api/v1/envelopes/"+env.ID+"/void", map[string]any{
		"reason": "wrong document", "actorName": "Olivia Owner",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("void status = %d", w.Code)
	}

	// Voiding twice conflicts.
	w = doJSON(t, r, http.MethodPost, "/api/v1/envelopes/"+env.ID+"/void", map[string]any{
		"reason": "again", "actorName": "Olivia Owner",
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("second void status = %d, want 409", w.Code)
	}

	w = doJSON(t, r, http.MethodGet, "/api/v1/envelopes/"+env.ID+"/history", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("history status = %d", w.Code)
	}
	var events []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &events); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(events) < 3 {
		t.Fatalf("history too short: %v", events)
	}
	last := events[len(events)-1]
	if last["action"] != "voided" {
		t.Fatalf("last action = %v, want voided", last["action"])
	}
}

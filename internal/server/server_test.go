package server

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	jwt "github.com/golang-jwt/jwt/v5"

	"tarotreader/internal/app"
	"tarotreader/internal/ratelimit"
	"tarotreader/internal/usertoken"
	"tarotreader/pkg/ai"
	"tarotreader/pkg/store"
)

const predictionJSON = `{"prediction":{"past":"a long road","present":"a crossroads","future":"a clear sky"},"firstMessage":"Is a decision weighing on you?","summary":"the outlook brightens"}`

type fakeGenerator struct {
	mu        sync.Mutex
	responses []string
	calls     int
}

func (f *fakeGenerator) next() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls >= len(f.responses) {
		return "", errors.New("fake generator exhausted")
	}
	resp := f.responses[f.calls]
	f.calls++
	return resp, nil
}

func (f *fakeGenerator) GenerateText(_ context.Context, _, _ string) (string, error) {
	return f.next()
}

func (f *fakeGenerator) GenerateChat(_ context.Context, _ []ai.Message) (string, error) {
	return f.next()
}

type fixedRNG struct{}

func (fixedRNG) Intn(int) int { return 0 }

type testEnv struct {
	srv   *httptest.Server
	token string
}

func newTestEnv(t *testing.T, gen *fakeGenerator, limiter *ratelimit.FixedWindowLimiter) testEnv {
	t.Helper()
	verifier, signer := newJWKSVerifier(t)
	appCore, err := app.New(app.Config{
		Store:         store.NewMemoryStore(),
		Generator:     gen,
		PublicBaseURL: "https://tarot.example",
		RNG:           fixedRNG{},
		FlipDelay:     time.Millisecond,
		HandoffDelay:  time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	s := New(Config{
		App:           appCore,
		TokenVerifier: verifier,
		LLMLimiter:    limiter,
	})
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return testEnv{srv: srv, token: mustSignUserToken(t, signer, "ext-1")}
}

func (e testEnv) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, e.srv.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+e.token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var out bytes.Buffer
	_, _ = out.ReadFrom(resp.Body)
	return resp, out.Bytes()
}

func TestAuthenticatedRoutesRejectMissingAndForgedTokens(t *testing.T) {
	env := newTestEnv(t, &fakeGenerator{}, nil)

	resp, err := http.Get(env.srv.URL + "/api/readings")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("missing token expected 401, got %d", resp.StatusCode)
	}

	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	forged := mustSignUserToken(t, otherKey, "ext-1")
	req, _ := http.NewRequest(http.MethodGet, env.srv.URL+"/api/readings", nil)
	req.Header.Set("Authorization", "Bearer "+forged)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("forged token expected 401, got %d", resp.StatusCode)
	}
}

func TestCardsEndpointIsPublic(t *testing.T) {
	env := newTestEnv(t, &fakeGenerator{}, nil)
	resp, err := http.Get(env.srv.URL + "/api/cards")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body struct {
		Cards []cardResponse `json:"cards"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Cards) != 22 {
		t.Fatalf("expected 22 catalog cards, got %d", len(body.Cards))
	}
	if body.Cards[0].Name != "The Fool" || body.Cards[0].ImageURL == "" {
		t.Fatalf("catalog entry wrong: %+v", body.Cards[0])
	}
}

func TestReadingWorkflowOverHTTP(t *testing.T) {
	gen := &fakeGenerator{responses: []string{
		predictionJSON,
		"The cards agree with you.",
	}}
	env := newTestEnv(t, gen, nil)

	resp, body := env.do(t, http.MethodPost, "/api/readings", map[string]any{
		"question": "Will I change jobs?",
		"cards": []map[string]any{
			{"name": "The Sun"},
			{"name": "The Moon", "isReversed": true},
			{"name": "The Star"},
		},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create reading expected 201, got %d: %s", resp.StatusCode, body)
	}
	var reading struct {
		ID    string `json:"id"`
		Cards string `json:"cards"`
	}
	if err := json.Unmarshal(body, &reading); err != nil {
		t.Fatalf("decode reading: %v", err)
	}
	if reading.Cards != "The Sun, The Moon (Reversed), The Star" {
		t.Fatalf("unexpected serialized hand: %q", reading.Cards)
	}

	resp, body = env.do(t, http.MethodGet, "/api/readings/"+reading.ID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get reading expected 200, got %d: %s", resp.StatusCode, body)
	}
	var sess struct {
		Messages []struct {
			Message      string `json:"message"`
			IsAIResponse bool   `json:"isAiResponse"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(body, &sess); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if len(sess.Messages) != 2 || !sess.Messages[0].IsAIResponse {
		t.Fatalf("expected 2 AI seed messages, got %+v", sess.Messages)
	}

	resp, body = env.do(t, http.MethodPost, "/api/readings/"+reading.ID+"/messages", map[string]string{
		"message": "I think so too",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("send expected 200, got %d: %s", resp.StatusCode, body)
	}
	var sent struct {
		Messages []struct {
			Message string `json:"message"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(body, &sent); err != nil {
		t.Fatalf("decode send: %v", err)
	}
	if len(sent.Messages) != 2 || sent.Messages[1].Message != "The cards agree with you." {
		t.Fatalf("send response wrong: %+v", sent.Messages)
	}

	resp, body = env.do(t, http.MethodPost, "/api/readings/"+reading.ID+"/share", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("share expected 200, got %d: %s", resp.StatusCode, body)
	}
	var share struct {
		ShareURL string `json:"shareUrl"`
	}
	if err := json.Unmarshal(body, &share); err != nil {
		t.Fatalf("decode share: %v", err)
	}
	if !strings.HasPrefix(share.ShareURL, "https://tarot.example/chat?shareId=") {
		t.Fatalf("share url wrong: %q", share.ShareURL)
	}

	shareID := strings.TrimPrefix(share.ShareURL, "https://tarot.example/chat?shareId=")
	resp, err := http.Get(env.srv.URL + "/api/shared?shareId=" + shareID)
	if err != nil {
		t.Fatalf("shared request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("shared expected 200, got %d", resp.StatusCode)
	}
	var shared struct {
		ReadOnly bool `json:"readOnly"`
		Messages []struct{}
	}
	if err := json.NewDecoder(resp.Body).Decode(&shared); err != nil {
		t.Fatalf("decode shared: %v", err)
	}
	if !shared.ReadOnly || len(shared.Messages) != 0 {
		t.Fatalf("shared session must be read-only without history")
	}
}

func TestBlankSendReturnsEmptyMessageList(t *testing.T) {
	gen := &fakeGenerator{responses: []string{predictionJSON}}
	env := newTestEnv(t, gen, nil)

	resp, body := env.do(t, http.MethodPost, "/api/readings", map[string]any{
		"question": "Q?",
		"cards": []map[string]any{
			{"name": "The Sun"}, {"name": "The Moon"}, {"name": "The Star"},
		},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create reading failed: %d: %s", resp.StatusCode, body)
	}
	var reading struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(body, &reading)

	resp, body = env.do(t, http.MethodPost, "/api/readings/"+reading.ID+"/messages", map[string]string{
		"message": "   ",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("blank send expected 200, got %d: %s", resp.StatusCode, body)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := strings.TrimSpace(string(raw["messages"])); got != "[]" {
		t.Fatalf("blank send should return an empty list, got %s", got)
	}
}

func TestSelectionEndpointsDriveReadingGeneration(t *testing.T) {
	gen := &fakeGenerator{responses: []string{predictionJSON}}
	env := newTestEnv(t, gen, nil)

	resp, body := env.do(t, http.MethodPost, "/api/selections", map[string]string{
		"question": "Will I move abroad?",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("start selection expected 201, got %d: %s", resp.StatusCode, body)
	}
	var status struct {
		ID        string `json:"id"`
		State     string `json:"state"`
		ReadingID string `json:"readingId"`
		Error     string `json:"error"`
	}
	if err := json.Unmarshal(body, &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}

	for _, card := range []string{"The Sun", "The Moon", "The Star"} {
		resp, body = env.do(t, http.MethodPost, "/api/selections/"+status.ID+"/cards", map[string]string{"card": card})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("tap %s expected 200, got %d: %s", card, resp.StatusCode, body)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, body = env.do(t, http.MethodGet, "/api/selections/"+status.ID, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("poll expected 200, got %d: %s", resp.StatusCode, body)
		}
		if err := json.Unmarshal(body, &status); err != nil {
			t.Fatalf("decode poll: %v", err)
		}
		if status.ReadingID != "" || status.Error != "" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("selection never produced a reading: %+v", status)
		}
		time.Sleep(5 * time.Millisecond)
	}
	if status.Error != "" {
		t.Fatalf("generation failed: %s", status.Error)
	}

	resp, body = env.do(t, http.MethodGet, "/api/readings/"+status.ReadingID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("generated reading not fetchable: %d: %s", resp.StatusCode, body)
	}
}

func TestQuestionEndpointValidatesTimeFrame(t *testing.T) {
	gen := &fakeGenerator{responses: []string{predictionJSON}}
	env := newTestEnv(t, gen, nil)

	resp, body := env.do(t, http.MethodPost, "/api/readings", map[string]any{
		"question": "Q?",
		"cards": []map[string]any{
			{"name": "The Sun"}, {"name": "The Moon"}, {"name": "The Star"},
		},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create reading failed: %d: %s", resp.StatusCode, body)
	}
	var reading struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(body, &reading)

	resp, body = env.do(t, http.MethodPost, "/api/readings/"+reading.ID+"/questions", map[string]string{
		"timeFrame": "SOMEDAY",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad timeframe expected 400, got %d: %s", resp.StatusCode, body)
	}
}

func TestLLMEndpointsAreRateLimited(t *testing.T) {
	redis := miniredis.RunT(t)
	limiter, err := ratelimit.NewRedisFixedWindowLimiter(redis.Addr(), "", "", 1, time.Minute)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	gen := &fakeGenerator{responses: []string{predictionJSON}}
	env := newTestEnv(t, gen, limiter)

	cards := []map[string]any{
		{"name": "The Sun"}, {"name": "The Moon"}, {"name": "The Star"},
	}
	resp, body := env.do(t, http.MethodPost, "/api/readings", map[string]any{"question": "Q?", "cards": cards})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("first call expected 201, got %d: %s", resp.StatusCode, body)
	}
	resp, body = env.do(t, http.MethodPost, "/api/readings", map[string]any{"question": "Q?", "cards": cards})
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("second call expected 429, got %d: %s", resp.StatusCode, body)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Fatalf("rate limited response missing Retry-After")
	}
}

func newJWKSVerifier(t *testing.T) (*usertoken.Verifier, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	jwksServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"keys": []map[string]string{
				{
					"kty": "RSA",
					"kid": "kid-1",
					"n":   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
					"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
				},
			},
		})
	}))
	t.Cleanup(jwksServer.Close)

	verifier, err := usertoken.NewVerifier(usertoken.Config{
		JWKSURL:  jwksServer.URL,
		Issuer:   "tarot-auth",
		Audience: "tarot-api",
		Leeway:   30 * time.Second,
	})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	return verifier, key
}

func mustSignUserToken(t *testing.T, key *rsa.PrivateKey, subject string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"sub":   subject,
		"email": subject + "@example.com",
		"iss":   "tarot-auth",
		"aud":   "tarot-api",
		"exp":   time.Now().Add(time.Minute).Unix(),
		"iat":   time.Now().Unix(),
		"nbf":   time.Now().Add(-time.Second).Unix(),
	})
	token.Header["kid"] = "kid-1"
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

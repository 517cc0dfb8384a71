package auth

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	mathrand "math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Captcha verification failures, returned in CaptchaResult.Error.
const (
	CaptchaInvalidSession   = "invalid session"
	CaptchaIncorrect        = "incorrect answer"
	CaptchaAttemptsExceeded = "too many attempts"
)

var (
	ulidMu      sync.Mutex
	ulidEntropy = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

func newSessionID() string {
	ulidMu.Lock()
	defer ulidMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulidEntropy).String()
}

// CaptchaChallenge is what the client shows the user.
type CaptchaChallenge struct {
	SessionID string    `json:"sessionId"`
	Challenge string    `json:"challenge"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// CaptchaResult is the outcome of one verification.
type CaptchaResult struct {
	Success      bool   `json:"success"`
	Error        string `json:"error,omitempty"`
	AttemptsLeft int    `json:"attemptsLeft,omitempty"`
}

type captchaSession struct {
	Answer       int       `json:"answer"`
	AttemptsLeft int       `json:"attemptsLeft"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// Captcha issues and checks single-digit arithmetic challenges. It deters
// scripted logins; it is not a cryptographic control. Concurrent verifies on
// one session id may race on the attempt counter.
type Captcha struct {
	store       KeyedStore
	ttl         time.Duration
	maxAttempts int
	now         func() time.Time
	operands    func() (a, b int, subtract bool)
}

// CaptchaOption configures a Captcha.
type CaptchaOption func(*Captcha)

// WithCaptchaClock overrides time.Now.
func WithCaptchaClock(now func() time.Time) CaptchaOption {
	return func(c *Captcha) { c.now = now }
}

// NewCaptcha returns a Captcha storing sessions in store.
func NewCaptcha(store KeyedStore, ttl time.Duration, maxAttempts int, opts ...CaptchaOption) *Captcha {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	c := &Captcha{
		store:       store,
		ttl:         ttl,
		maxAttempts: maxAttempts,
		now:         time.Now,
		operands:    randomOperands,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func randomOperands() (int, int, bool) {
	return randomDigit(), randomDigit(), randomDigit()%2 == 1
}

func randomDigit() int {
	n, err := rand.Int(rand.Reader, big.NewInt(10))
	if err != nil {
		return mathrand.Intn(10)
	}
	return int(n.Int64())
}

func captchaKey(id string) string { return "captcha:" + id }

// Generate creates and stores a new challenge.
func (c *Captcha) Generate(ctx context.Context) (*CaptchaChallenge, error) {
	a, b, subtract := c.operands()
	op := "+"
	answer := a + b
	if subtract {
		if b > a {
			a, b = b, a
		}
		op = "-"
		answer = a - b
	}

	expiresAt := c.now().Add(c.ttl)
	sess := captchaSession{Answer: answer, AttemptsLeft: c.maxAttempts, ExpiresAt: expiresAt}
	raw, err := json.Marshal(sess)
	if err != nil {
		return nil, err
	}
	id := newSessionID()
	if err := c.store.Set(ctx, captchaKey(id), raw, c.ttl); err != nil {
		return nil, fmt.Errorf("store captcha session: %w", err)
	}
	return &CaptchaChallenge{
		SessionID: id,
		Challenge: fmt.Sprintf("%d %s %d", a, op, b),
		ExpiresAt: expiresAt,
	}, nil
}

// Verify checks answer for sessionID. The session is deleted on success,
// on expiry and when the last attempt fails.
func (c *Captcha) Verify(ctx context.Context, sessionID, answer string) (CaptchaResult, error) {
	if strings.TrimSpace(sessionID) == "" {
		return CaptchaResult{Error: CaptchaInvalidSession}, nil
	}
	key := captchaKey(sessionID)
	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		return CaptchaResult{}, fmt.Errorf("load captcha session: %w", err)
	}
	if !ok {
		return CaptchaResult{Error: CaptchaInvalidSession}, nil
	}
	var sess captchaSession
	if err := json.Unmarshal(raw, &sess); err != nil {
		_ = c.store.Delete(ctx, key)
		return CaptchaResult{Error: CaptchaInvalidSession}, nil
	}

	now := c.now()
	if !now.Before(sess.ExpiresAt) {
		_ = c.store.Delete(ctx, key)
		return CaptchaResult{Error: CaptchaInvalidSession}, nil
	}

	got, perr := strconv.Atoi(strings.TrimSpace(answer))
	if perr == nil && got == sess.Answer {
		if err := c.store.Delete(ctx, key); err != nil {
			return CaptchaResult{}, fmt.Errorf("delete captcha session: %w", err)
		}
		return CaptchaResult{Success: true}, nil
	}

	sess.AttemptsLeft--
	if sess.AttemptsLeft <= 0 {
		if err := c.store.Delete(ctx, key); err != nil {
			return CaptchaResult{}, fmt.Errorf("delete captcha session: %w", err)
		}
		return CaptchaResult{Error: CaptchaAttemptsExceeded}, nil
	}
	raw, err = json.Marshal(sess)
	if err != nil {
		return CaptchaResult{}, err
	}
	if err := c.store.Set(ctx, key, raw, sess.ExpiresAt.Sub(now)); err != nil {
		return CaptchaResult{}, fmt.Errorf("store captcha session: %w", err)
	}
	return CaptchaResult{Error: CaptchaIncorrect, AttemptsLeft: sess.AttemptsLeft}, nil
}

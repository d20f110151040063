package notify

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// codeTTL bounds how long a verification code stays valid.
const codeTTL = 10 * time.Minute

// codeLength matches the six-digit input on the client.
const codeLength = 6

// CodeStore issues and verifies short-lived numeric verification codes.
type CodeStore interface {
	// Issue generates a fresh code for the address, replacing any earlier
	// one.
	Issue(ctx context.Context, email string) (string, error)
	// Verify consumes the code for the address. A code verifies at most
	// once.
	Verify(ctx context.Context, email, code string) (bool, error)
}

// GenerateCode returns a random numeric code of the standard length.
func GenerateCode() (string, error) {
	const digits = "0123456789"
	code := make([]byte, codeLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(digits))))
		if err != nil {
			return "", fmt.Errorf("generating code: %w", err)
		}
		code[i] = digits[n.Int64()]
	}
	return string(code), nil
}

// RedisCodeStore keeps codes in Redis with a TTL, shared between the API
// server (verification) and the worker (issuing on email delivery).
type RedisCodeStore struct {
	client *redis.Client
}

func NewRedisCodeStore(client *redis.Client) *RedisCodeStore {
	return &RedisCodeStore{client: client}
}

func codeKey(email string) string {
	return "authcode:" + email
}

func (s *RedisCodeStore) Issue(ctx context.Context, email string) (string, error) {
	code, err := GenerateCode()
	if err != nil {
		return "", err
	}
	if err := s.client.Set(ctx, codeKey(email), code, codeTTL).Err(); err != nil {
		return "", fmt.Errorf("storing code: %w", err)
	}
	return code, nil
}

func (s *RedisCodeStore) Verify(ctx context.Context, email, code string) (bool, error) {
	stored, err := s.client.GetDel(ctx, codeKey(email)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading code: %w", err)
	}
	return stored == code, nil
}

// MemoryCodeStore is an in-process CodeStore for tests and development
// setups without Redis.
type MemoryCodeStore struct {
	mu    sync.Mutex
	codes map[string]memoryCode
}

type memoryCode struct {
	code      string
	expiresAt time.Time
}

func NewMemoryCodeStore() *MemoryCodeStore {
	return &MemoryCodeStore{codes: make(map[string]memoryCode)}
}

func (s *MemoryCodeStore) Issue(ctx context.Context, email string) (string, error) {
	code, err := GenerateCode()
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[email] = memoryCode{code: code, expiresAt: time.Now().Add(codeTTL)}
	return code, nil
}

func (s *MemoryCodeStore) Verify(ctx context.Context, email, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.codes[email]
	if !ok {
		return false, nil
	}
	delete(s.codes, email)
	if time.Now().After(entry.expiresAt) {
		return false, nil
	}
	return entry.code == code, nil
}

var (
	_ CodeStore = (*RedisCodeStore)(nil)
	_ CodeStore = (*MemoryCodeStore)(nil)
)

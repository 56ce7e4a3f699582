package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"waenhancer/internal/database"
	"waenhancer/pkg/protocol"
)

type mockRelay struct {
	mock.Mock
}

func (m *mockRelay) Send(ctx context.Context, cmd *protocol.Command) error {
	args := m.Called(ctx, cmd)
	return args.Error(0)
}

type mockGenerator struct {
	mock.Mock
}

func (m *mockGenerator) GenerateContent(ctx context.Context, apiKey, model, prompt string) (string, error) {
	args := m.Called(ctx, apiKey, model, prompt)
	return args.String(0), args.Error(1)
}

// recordingSender collects commands delivered through a Hub.
type recordingSender struct {
	mu   sync.Mutex
	cmds []*protocol.Command
	err  error
}

func (s *recordingSender) SendCommand(_ context.Context, cmd *protocol.Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.cmds = append(s.cmds, cmd)
	return nil
}

func (s *recordingSender) received() []*protocol.Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*protocol.Command, len(s.cmds))
	copy(out, s.cmds)
	return out
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return logger
}

func setupTestDB(t *testing.T) *database.Database {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "service.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func commandOfType(typ protocol.CommandType) interface{} {
	return mock.MatchedBy(func(cmd *protocol.Command) bool { return cmd.Type == typ })
}

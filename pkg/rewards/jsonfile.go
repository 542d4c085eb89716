package rewards

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"
)

// JSONFile is a Store backed by a single JSON file mapping lowercase
// usernames to reward lists. The whole file is rewritten on each mutation,
// using a write-to-temp-and-rename so a crash never leaves a torn file. A
// single process is assumed to own the file.
type JSONFile struct {
	Log zerolog.Logger

	path string

	mu      sync.Mutex
	rewards map[string][]PendingReward

	now func() time.Time
}

// OpenJSONFile loads (or initializes) the store at path. A missing file is a
// fresh start. A file that fails to parse is backed up beside itself as
// <path>.corrupt.gz and the store starts empty.
func OpenJSONFile(path string, log zerolog.Logger) (*JSONFile, error) {
	s := &JSONFile{
		Log:     log,
		path:    path,
		rewards: map[string][]PendingReward{},
		now:     time.Now,
	}
	if err := os.MkdirAll(filepath.Dir(path), 0777); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.Log.Info().Str("path", path).Msg("no pending rewards file, starting fresh")
			return s, nil
		}
		return nil, fmt.Errorf("read pending rewards: %w", err)
	}
	if err := json.Unmarshal(buf, &s.rewards); err != nil {
		s.Log.Warn().Err(err).Str("path", path).Msg("pending rewards file is corrupt, backing it up and starting empty")
		if err := backupCorrupt(path, buf); err != nil {
			s.Log.Err(err).Msg("failed to back up corrupt pending rewards file")
		}
		s.rewards = map[string][]PendingReward{}
		return s, nil
	}
	s.Log.Info().Int("players", len(s.rewards)).Msg("loaded pending rewards")
	return s, nil
}

func (s *JSONFile) Add(username, service string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(username)
	s.rewards[key] = append(s.rewards[key], PendingReward{
		Username:  username,
		Service:   service,
		Timestamp: timestamp(s.now()),
	})
	if err := s.save(); err != nil {
		return err
	}
	s.Log.Info().Str("username", username).Str("service", service).Msg("added pending reward")
	return nil
}

func (s *JSONFile) Pending(username string) ([]PendingReward, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return unclaimed(s.rewards[strings.ToLower(username)]), nil
}

func (s *JSONFile) PendingCount(username string) (int, error) {
	rs, err := s.Pending(username)
	return len(rs), err
}

func (s *JSONFile) ClaimAll(username string) ([]PendingReward, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(username)
	rs := s.rewards[key]
	prev := unclaimed(rs)
	for i := range rs {
		rs[i].Claimed = true
	}
	if err := s.save(); err != nil {
		return nil, err
	}
	s.Log.Info().Str("username", username).Int("count", len(prev)).Msg("claimed pending rewards")
	return prev, nil
}

func (s *JSONFile) ClearClaimed(username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(username)
	rs, ok := s.rewards[key]
	if !ok {
		return nil
	}
	if rem := unclaimed(rs); len(rem) != 0 {
		s.rewards[key] = rem
	} else {
		delete(s.rewards, key)
	}
	return s.save()
}

func (s *JSONFile) AllPlayersWithPending() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var names []string
	for name, rs := range s.rewards {
		if len(unclaimed(rs)) != 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *JSONFile) Close() error {
	return nil
}

// save rewrites the whole file. Caller must hold s.mu.
func (s *JSONFile) save() error {
	buf, err := json.MarshalIndent(s.rewards, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal pending rewards: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, buf, 0666); err != nil {
		return fmt.Errorf("write pending rewards: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write pending rewards: %w", err)
	}
	return nil
}

func unclaimed(rs []PendingReward) []PendingReward {
	var out []PendingReward
	for _, r := range rs {
		if !r.Claimed {
			out = append(out, r)
		}
	}
	return out
}

func backupCorrupt(path string, buf []byte) error {
	f, err := os.OpenFile(path+".corrupt.gz", os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0666)
	if err != nil {
		return err
	}
	defer f.Close()

	zw := gzip.NewWriter(f)
	if _, err := zw.Write(buf); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}
	return f.Close()
}

var _ io.Closer = (*JSONFile)(nil)

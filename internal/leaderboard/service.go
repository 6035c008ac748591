package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/pigi/quizmaster/internal/session"
)

// Sources of a stored leaderboard.
const (
	SourceLive    = "live"
	SourceArchive = "archive"
)

// ErrNotFound is returned when Redis holds no leaderboard for a session.
var ErrNotFound = errors.New("leaderboard not found")

// ServiceOptions configures leaderboard service behavior.
type ServiceOptions struct {
	TopN           int
	ArchiveTTL     time.Duration
	LiveTTL        time.Duration
	RedisKeyPrefix string
}

// Service keeps session leaderboards in Redis: a sorted set of participants
// ordered by rank plus one metadata hash per participant. Finished sessions
// are archived for ArchiveTTL; live snapshots expire after LiveTTL unless refreshed.
type Service struct {
	redis      *redis.Client
	logger     zerolog.Logger
	topN       int
	archiveTTL time.Duration
	liveTTL    time.Duration
	prefix     string

	// beforeLiveWrite runs between the source check and the live write.
	beforeLiveWrite func()
}

const maxLiveWriteAttempts = 3

var _ session.ResultSink = (*Service)(nil)

// NewService constructs a leaderboard service instance.
func NewService(redis *redis.Client, logger zerolog.Logger, opts ServiceOptions) *Service {
	topN := opts.TopN
	if topN <= 0 {
		topN = 100
	}
	archiveTTL := opts.ArchiveTTL
	if archiveTTL <= 0 {
		archiveTTL = 7 * 24 * time.Hour
	}
	liveTTL := opts.LiveTTL
	if liveTTL <= 0 {
		liveTTL = 2 * time.Minute
	}
	prefix := opts.RedisKeyPrefix
	if prefix == "" {
		prefix = "lb"
	}

	return &Service{
		redis:      redis,
		logger:     logger.With().Str("component", "leaderboard").Logger(),
		topN:       topN,
		archiveTTL: archiveTTL,
		liveTTL:    liveTTL,
		prefix:     prefix,
	}
}

// Save archives the final leaderboard of an ended session.
func (s *Service) Save(ctx context.Context, result session.Result) error {
	pipe := s.redis.TxPipeline()
	s.queueWrite(ctx, pipe, result.SessionID, SourceArchive, result.Leaderboard, s.archiveTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store leaderboard %s: %w", result.SessionID, err)
	}
	return nil
}

// StoreLive publishes the current ranking of a running session so any
// instance can serve it. The source key is watched, so an archive written
// concurrently is never replaced by a live snapshot.
func (s *Service) StoreLive(ctx context.Context, sessionID string, entries []session.LeaderboardEntry) error {
	sourceKey := s.sourceKey(sessionID)
	for attempt := 0; attempt < maxLiveWriteAttempts; attempt++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			source, err := tx.Get(ctx, sourceKey).Result()
			if err == nil && source == SourceArchive {
				return nil
			}
			if err != nil && !errors.Is(err, redis.Nil) {
				return fmt.Errorf("read leaderboard source: %w", err)
			}
			if s.beforeLiveWrite != nil {
				s.beforeLiveWrite()
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				s.queueWrite(ctx, pipe, sessionID, SourceLive, entries, s.liveTTL)
				return nil
			})
			return err
		}, sourceKey)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("store live leaderboard %s: %w", sessionID, err)
		}
		return nil
	}
	return fmt.Errorf("store live leaderboard %s: source kept changing", sessionID)
}

func (s *Service) queueWrite(ctx context.Context, pipe redis.Pipeliner, sessionID, source string, entries []session.LeaderboardEntry, ttl time.Duration) {
	zKey := s.leaderboardKey(sessionID)
	pipe.Del(ctx, zKey)
	for _, e := range entries {
		metaKey := s.metaKey(sessionID, e.ParticipantID)
		pipe.ZAdd(ctx, zKey, redis.Z{Score: float64(e.Rank), Member: e.ParticipantID})
		pipe.HSet(ctx, metaKey, map[string]interface{}{
			"display_name": e.DisplayName,
			"score":        e.TotalScore,
			"correct":      e.CorrectCount,
		})
		pipe.Expire(ctx, metaKey, ttl)
	}
	pipe.Set(ctx, s.sourceKey(sessionID), source, ttl)
	pipe.Expire(ctx, zKey, ttl)
}

// Top retrieves the first entries of a stored session leaderboard and where it came from.
func (s *Service) Top(ctx context.Context, sessionID string, limit int) ([]session.LeaderboardEntry, string, error) {
	if limit <= 0 || limit > s.topN {
		limit = s.topN
	}

	source, err := s.redis.Get(ctx, s.sourceKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("read leaderboard source: %w", err)
	}

	zKey := s.leaderboardKey(sessionID)
	results, err := s.redis.ZRangeWithScores(ctx, zKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, "", fmt.Errorf("fetch leaderboard: %w", err)
	}

	entries := make([]session.LeaderboardEntry, 0, len(results))
	for _, z := range results {
		participantID, _ := z.Member.(string)
		entry, err := s.readMeta(ctx, sessionID, participantID)
		if err != nil {
			s.logger.Warn().Err(err).Str("session_id", sessionID).Msg("failed to read leaderboard metadata")
			continue
		}
		entry.Rank = int(z.Score)
		entries = append(entries, entry)
	}
	return entries, source, nil
}

func (s *Service) readMeta(ctx context.Context, sessionID, participantID string) (session.LeaderboardEntry, error) {
	data, err := s.redis.HGetAll(ctx, s.metaKey(sessionID, participantID)).Result()
	if err != nil {
		return session.LeaderboardEntry{}, err
	}
	return session.LeaderboardEntry{
		ParticipantID: participantID,
		DisplayName:   data["display_name"],
		TotalScore:    parseInt(data["score"]),
		CorrectCount:  parseInt(data["correct"]),
	}, nil
}

func (s *Service) leaderboardKey(sessionID string) string {
	return fmt.Sprintf("%s:session:%s", s.prefix, sessionID)
}

func (s *Service) metaKey(sessionID, participantID string) string {
	return fmt.Sprintf("%s:session:%s:meta:%s", s.prefix, sessionID, participantID)
}

func (s *Service) sourceKey(sessionID string) string {
	return fmt.Sprintf("%s:session:%s:source", s.prefix, sessionID)
}

func parseInt(val string) int {
	if val == "" {
		return 0
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return 0
	}
	return i
}

package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-quiz-api/internal/dto"
	"github.com/noah-isme/gema-quiz-api/internal/observability"
	"github.com/noah-isme/gema-quiz-api/internal/repository"
)

const (
	questionEventBufferSize = 8
	questionSnapshotTTL     = 15 * time.Minute
)

// QuestionSyncService serves the student view of an assignment's questions with a version
// fingerprint and fans out change events to subscribed clients.
type QuestionSyncService interface {
	QuestionChangeNotifier
	Sync(ctx context.Context, assignmentID uint, knownVersion string) (dto.QuestionSyncResponse, error)
	Subscribe(assignmentID uint) (<-chan dto.QuestionChangedEvent, func())
	Start(ctx context.Context)
}

type questionSyncService struct {
	assignments repository.AssignmentRepository
	questions   repository.QuestionRepository
	redis       *redis.Client
	redisStream string
	nats        *nats.Conn
	natsSubject string
	logger      zerolog.Logger
	broker      *questionBroker
	nodeID      string
	now         func() time.Time
}

type questionEvent struct {
	Source string                   `json:"source"`
	Event  dto.QuestionChangedEvent `json:"event"`
	SentAt time.Time                `json:"sent_at"`
}

type questionBroker struct {
	mu          sync.RWMutex
	subscribers map[uint]map[chan dto.QuestionChangedEvent]struct{}
}

// NewQuestionSyncService constructs the question sync service. Redis and NATS are optional; without
// them change events only reach clients connected to this node.
func NewQuestionSyncService(assignments repository.AssignmentRepository, questions repository.QuestionRepository, redisClient *redis.Client, channelBase string, natsConn *nats.Conn, logger zerolog.Logger) QuestionSyncService {
	stream := ""
	subject := ""
	if channelBase != "" {
		stream = channelBase + ":questions"
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".questions"
	}

	return &questionSyncService{
		assignments: assignments,
		questions:   questions,
		redis:       redisClient,
		redisStream: stream,
		nats:        natsConn,
		natsSubject: subject,
		logger:      logger.With().Str("component", "question_sync_service").Logger(),
		broker: &questionBroker{
			subscribers: make(map[uint]map[chan dto.QuestionChangedEvent]struct{}),
		},
		nodeID: uuid.NewString(),
		now:    time.Now,
	}
}

func (s *questionSyncService) Start(ctx context.Context) {
	if s.redis != nil && s.redisStream != "" {
		go s.consumeRedis(ctx)
	}
	if s.nats != nil && s.natsSubject != "" {
		go s.consumeNATS(ctx)
	}
}

func (s *questionSyncService) Sync(ctx context.Context, assignmentID uint, knownVersion string) (dto.QuestionSyncResponse, error) {
	assignment, err := s.assignments.GetByID(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.QuestionSyncResponse{}, ErrAssignmentNotFound
		}
		return dto.QuestionSyncResponse{}, err
	}
	if assignment.Hidden {
		return dto.QuestionSyncResponse{}, ErrAssignmentNotFound
	}

	rows, err := s.questions.ListByAssignment(ctx, assignmentID)
	if err != nil {
		return dto.QuestionSyncResponse{}, err
	}

	questions := dto.NewStudentQuestionResponseSlice(rows)
	version := QuestionFingerprint(questions)
	response := dto.QuestionSyncResponse{
		AssignmentID: assignmentID,
		Version:      version,
	}

	knownVersion = strings.TrimSpace(knownVersion)
	if knownVersion != "" && knownVersion == version {
		return response, nil
	}

	response.Changed = true
	response.Questions = questions

	if knownVersion != "" {
		if previous, ok := s.loadSnapshot(ctx, assignmentID, knownVersion); ok {
			diff := dto.DiffQuestions(previous, questions)
			response.Diff = &diff
		}
	}
	s.storeSnapshot(ctx, assignmentID, version, questions)

	return response, nil
}

func (s *questionSyncService) NotifyQuestionsChanged(ctx context.Context, assignmentID uint) error {
	rows, err := s.questions.ListByAssignment(ctx, assignmentID)
	if err != nil {
		return err
	}

	event := dto.QuestionChangedEvent{
		AssignmentID: assignmentID,
		Version:      QuestionFingerprint(dto.NewStudentQuestionResponseSlice(rows)),
	}

	s.broker.broadcast(event)
	observability.QuestionEventsPublished().WithLabelValues("local").Inc()

	return s.publish(ctx, event)
}

func (s *questionSyncService) Subscribe(assignmentID uint) (<-chan dto.QuestionChangedEvent, func()) {
	channel := make(chan dto.QuestionChangedEvent, questionEventBufferSize)

	s.broker.subscribe(assignmentID, channel)
	observability.SSEClientsActive().Inc()

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			s.broker.unsubscribe(assignmentID, channel)
			observability.SSEClientsActive().Dec()
		})
	}

	return channel, cleanup
}

func (s *questionSyncService) publish(ctx context.Context, event dto.QuestionChangedEvent) error {
	payload, err := json.Marshal(questionEvent{
		Source: s.nodeID,
		Event:  event,
		SentAt: s.now().UTC(),
	})
	if err != nil {
		return err
	}

	if s.redis != nil && s.redisStream != "" {
		if err := s.redis.Publish(ctx, s.redisStream, payload).Err(); err != nil {
			return fmt.Errorf("publish question event to redis: %w", err)
		}
		observability.QuestionEventsPublished().WithLabelValues("redis").Inc()
	}

	if s.nats != nil && s.natsSubject != "" {
		if err := s.nats.Publish(s.natsSubject, payload); err != nil {
			return fmt.Errorf("publish question event to nats: %w", err)
		}
		observability.QuestionEventsPublished().WithLabelValues("nats").Inc()
	}

	return nil
}

func (s *questionSyncService) consumeRedis(ctx context.Context) {
	pubsub := s.redis.Subscribe(ctx, s.redisStream)
	defer func() { _ = pubsub.Close() }()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, redis.ErrClosed) {
				return
			}
			s.logger.Error().Err(err).Msg("question redis subscription closed")
			return
		}
		s.handleEvent([]byte(msg.Payload))
	}
}

func (s *questionSyncService) consumeNATS(ctx context.Context) {
	// Every node needs every event, so this is a plain subscription rather than a queue group.
	sub, err := s.nats.Subscribe(s.natsSubject, func(msg *nats.Msg) {
		s.handleEvent(msg.Data)
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to subscribe to nats questions subject")
		return
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to drain question nats subscription")
		}
	}()
}

func (s *questionSyncService) handleEvent(payload []byte) {
	var event questionEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		s.logger.Warn().Err(err).Msg("invalid question event payload")
		return
	}

	if event.Source == s.nodeID || event.Event.AssignmentID == 0 {
		return
	}

	s.broker.broadcast(event.Event)
}

func (s *questionSyncService) snapshotKey(assignmentID uint, version string) string {
	return fmt.Sprintf("questions:snapshot:%d:%s", assignmentID, version)
}

func (s *questionSyncService) loadSnapshot(ctx context.Context, assignmentID uint, version string) ([]dto.StudentQuestionResponse, bool) {
	if s.redis == nil {
		return nil, false
	}

	raw, err := s.redis.Get(ctx, s.snapshotKey(assignmentID, version)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Msg("failed to read question snapshot")
		}
		return nil, false
	}

	var questions []dto.StudentQuestionResponse
	if err := json.Unmarshal(raw, &questions); err != nil {
		return nil, false
	}
	return questions, true
}

func (s *questionSyncService) storeSnapshot(ctx context.Context, assignmentID uint, version string, questions []dto.StudentQuestionResponse) {
	if s.redis == nil {
		return
	}

	payload, err := json.Marshal(questions)
	if err != nil {
		return
	}
	if err := s.redis.Set(ctx, s.snapshotKey(assignmentID, version), payload, questionSnapshotTTL).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to store question snapshot")
	}
}

// QuestionFingerprint hashes the ordered student view, covering id, position, type, content,
// image, options and points of every question.
func QuestionFingerprint(questions []dto.StudentQuestionResponse) string {
	hasher := sha256.New()
	encoder := json.NewEncoder(hasher)
	for _, question := range questions {
		_ = encoder.Encode(question)
	}
	return hex.EncodeToString(hasher.Sum(nil))[:32]
}

func (b *questionBroker) subscribe(assignmentID uint, ch chan dto.QuestionChangedEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscribers[assignmentID]; !exists {
		b.subscribers[assignmentID] = make(map[chan dto.QuestionChangedEvent]struct{})
	}
	b.subscribers[assignmentID][ch] = struct{}{}
}

func (b *questionBroker) unsubscribe(assignmentID uint, ch chan dto.QuestionChangedEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if subscribers, ok := b.subscribers[assignmentID]; ok {
		delete(subscribers, ch)
		close(ch)
		if len(subscribers) == 0 {
			delete(b.subscribers, assignmentID)
		}
	}
}

func (b *questionBroker) broadcast(event dto.QuestionChangedEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subscribers[event.AssignmentID] {
		select {
		case ch <- event:
		default:
		}
	}
}

package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"giveaway-bot/internal/features/giveaway/models"
	"giveaway-bot/internal/features/giveaway/repository"
	usermodels "giveaway-bot/internal/features/user/models"
	userrepo "giveaway-bot/internal/features/user/repository"
)

// In-memory fakes driving the engine in tests. They enforce the same
// contracts as the real stores (forward-only transitions, idempotent adds,
// expirable participant sets) without postgres or redis.

type fakeRepo struct {
	mu        sync.Mutex
	nextID    int64
	giveaways map[int64]*models.Giveaway
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{nextID: 1, giveaways: make(map[int64]*models.Giveaway)}
}

func (r *fakeRepo) put(g *models.Giveaway) *models.Giveaway {
	r.mu.Lock()
	defer r.mu.Unlock()
	if g.ID == 0 {
		g.ID = r.nextID
		r.nextID++
	}
	r.giveaways[g.ID] = g
	return g
}

func (r *fakeRepo) Create(ctx context.Context, def *models.Definition) (int64, error) {
	if err := def.Validate(); err != nil {
		return 0, err
	}
	g := r.put(&models.Giveaway{
		CreatorID:         def.CreatorID,
		ChannelID:         def.ChannelID,
		Text:              def.Text,
		MediaType:         def.MediaType,
		Media:             def.Media,
		Button:            def.Button,
		SponsorChannelIDs: def.SponsorChannelIDs,
		ExtraConditions:   def.ExtraConditions,
		Captcha:           def.Captcha,
		WinnersCount:      def.WinnersCount,
		PostAt:            def.PostAt,
		EndAt:             def.EndAt,
		EndCount:          def.EndCount,
		Status:            models.StatusNotPublished,
	})
	return g.ID, nil
}

func (r *fakeRepo) GetByID(ctx context.Context, id int64) (*models.Giveaway, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.giveaways[id]
	if !ok {
		return nil, repository.ErrGiveawayNotFound
	}
	cp := *g
	return &cp, nil
}

func (r *fakeRepo) GetByCreator(ctx context.Context, creatorID int64) ([]*models.Giveaway, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Giveaway
	for _, g := range r.giveaways {
		if g.CreatorID == creatorID {
			cp := *g
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeRepo) ListDue(ctx context.Context, now time.Time) (*repository.DueGiveaways, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	due := &repository.DueGiveaways{}
	for _, g := range r.giveaways {
		cp := *g
		switch {
		case g.Status == models.StatusNotPublished && (g.PostAt == nil || !g.PostAt.After(now)):
			due.ToPublish = append(due.ToPublish, &cp)
		case g.Status == models.StatusPublished && (g.DeadlinePassed(now) || g.EndCount != nil):
			due.ToEvaluate = append(due.ToEvaluate, &cp)
		}
	}
	return due, nil
}

func (r *fakeRepo) TransitionStatus(ctx context.Context, id int64, status models.GiveawayStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.giveaways[id]
	if !ok {
		return repository.ErrGiveawayNotFound
	}
	if g.Status == status {
		return nil
	}
	if !g.Status.CanTransitionTo(status) {
		return fmt.Errorf("%w: %s -> %s", repository.ErrInvalidTransition, g.Status, status)
	}
	g.Status = status
	return nil
}

func (r *fakeRepo) RecordPublish(ctx context.Context, id int64, postURL string, messageID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.giveaways[id]
	if !ok {
		return repository.ErrGiveawayNotFound
	}
	g.PostURL = postURL
	g.MessageID = messageID
	return nil
}

func (r *fakeRepo) RecordFinish(ctx context.Context, id int64, participantsCount int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.giveaways[id]
	if !ok {
		return repository.ErrGiveawayNotFound
	}
	g.ParticipantsCount = participantsCount
	return nil
}

func (r *fakeRepo) AppendWinners(ctx context.Context, id int64, winners []int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.giveaways[id]
	if !ok {
		return repository.ErrGiveawayNotFound
	}
	g.WinnerIDs = append(g.WinnerIDs, winners...)
	return nil
}

func (r *fakeRepo) UpdateEndCondition(ctx context.Context, id int64, endAt *time.Time, endCount *int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.giveaways[id]
	if !ok {
		return repository.ErrGiveawayNotFound
	}
	g.EndAt = endAt
	g.EndCount = endCount
	return nil
}

func (r *fakeRepo) Delete(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.giveaways[id]; !ok {
		return repository.ErrGiveawayNotFound
	}
	delete(r.giveaways, id)
	return nil
}

func (r *fakeRepo) DeleteByChannel(ctx context.Context, channelID int64) ([]*models.Giveaway, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed []*models.Giveaway
	for id, g := range r.giveaways {
		if g.ChannelID == channelID {
			cp := *g
			removed = append(removed, &cp)
			delete(r.giveaways, id)
		}
	}
	return removed, nil
}

func (r *fakeRepo) DetachSponsorChannel(ctx context.Context, channelID int64) ([]*models.Giveaway, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var orphaned []*models.Giveaway
	for _, g := range r.giveaways {
		if g.Status == models.StatusFinished {
			continue
		}
		var kept []int64
		found := false
		for _, s := range g.SponsorChannelIDs {
			if s == channelID {
				found = true
				continue
			}
			kept = append(kept, s)
		}
		if !found {
			continue
		}
		g.SponsorChannelIDs = kept
		if len(kept) == 0 {
			cp := *g
			orphaned = append(orphaned, &cp)
		}
	}
	return orphaned, nil
}

type fakeParticipants struct {
	mu      sync.Mutex
	order   map[int64][]int64
	members map[int64]map[int64]bool
	expired map[int64]time.Duration
}

func newFakeParticipants() *fakeParticipants {
	return &fakeParticipants{
		order:   make(map[int64][]int64),
		members: make(map[int64]map[int64]bool),
		expired: make(map[int64]time.Duration),
	}
}

func (p *fakeParticipants) Create(ctx context.Context, giveawayID int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.members[giveawayID]; !ok {
		p.members[giveawayID] = make(map[int64]bool)
	}
	return nil
}

func (p *fakeParticipants) drop(giveawayID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.members, giveawayID)
	delete(p.order, giveawayID)
}

func (p *fakeParticipants) Add(ctx context.Context, giveawayID, userID int64) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	set, ok := p.members[giveawayID]
	if !ok {
		return false, repository.ErrParticipantsGone
	}
	if set[userID] {
		return false, nil
	}
	set[userID] = true
	p.order[giveawayID] = append(p.order[giveawayID], userID)
	return true, nil
}

func (p *fakeParticipants) IsMember(ctx context.Context, giveawayID, userID int64) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	set, ok := p.members[giveawayID]
	if !ok {
		return false, repository.ErrParticipantsGone
	}
	return set[userID], nil
}

func (p *fakeParticipants) Count(ctx context.Context, giveawayID int64) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	set, ok := p.members[giveawayID]
	if !ok {
		return 0, repository.ErrParticipantsGone
	}
	return int64(len(set)), nil
}

func (p *fakeParticipants) Members(ctx context.Context, giveawayID int64) ([]int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.members[giveawayID]; !ok {
		return nil, repository.ErrParticipantsGone
	}
	return append([]int64(nil), p.order[giveawayID]...), nil
}

func (p *fakeParticipants) LastN(ctx context.Context, giveawayID int64, n int64) ([]int64, error) {
	all, err := p.Members(ctx, giveawayID)
	if err != nil {
		return nil, err
	}
	if int64(len(all)) <= n {
		return all, nil
	}
	return all[int64(len(all))-n:], nil
}

func (p *fakeParticipants) Expire(ctx context.Context, giveawayID int64, ttl time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expired[giveawayID] = ttl
	return nil
}

type fakeCaptchaStore struct {
	mu         sync.Mutex
	challenges map[int64]*repository.CaptchaChallenge
}

func newFakeCaptchaStore() *fakeCaptchaStore {
	return &fakeCaptchaStore{challenges: make(map[int64]*repository.CaptchaChallenge)}
}

func (s *fakeCaptchaStore) SetChallenge(ctx context.Context, userID int64, c *repository.CaptchaChallenge, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.challenges[userID] = &cp
	return nil
}

func (s *fakeCaptchaStore) GetChallenge(ctx context.Context, userID int64) (*repository.CaptchaChallenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.challenges[userID]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (s *fakeCaptchaStore) DecrementAttempts(ctx context.Context, userID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.challenges[userID]
	if !ok {
		return 0, nil
	}
	c.AttemptsLeft--
	if c.AttemptsLeft <= 0 {
		delete(s.challenges, userID)
		return 0, nil
	}
	return c.AttemptsLeft, nil
}

func (s *fakeCaptchaStore) ClearChallenge(ctx context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.challenges, userID)
	return nil
}

type sentMessage struct {
	ChatID int64
	Text   string
}

// fakeMessenger records everything the engine sends and lets tests script
// membership answers and transport failures.
type fakeMessenger struct {
	mu sync.Mutex

	posts        []sentMessage
	replies      []sentMessage
	messages     []sentMessage
	photos       []int64
	buttonEdits  []int64
	nextMsgID    int64
	postErr      error
	editErr      error
	replyErr     error
	sendErrFor   map[int64]error
	memberships  map[string]MemberStatus
	membershipFn func(channelID, userID int64) (MemberStatus, error)
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{
		nextMsgID:   100,
		sendErrFor:  make(map[int64]error),
		memberships: make(map[string]MemberStatus),
	}
}

func membershipKey(channelID, userID int64) string {
	return fmt.Sprintf("%d/%d", channelID, userID)
}

func (m *fakeMessenger) setMembership(channelID, userID int64, status MemberStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.memberships[membershipKey(channelID, userID)] = status
}

func (m *fakeMessenger) BotUsername() string { return "prize_bot" }

func (m *fakeMessenger) SendChannelPost(ctx context.Context, channelID int64, content PostContent) (int64, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.postErr != nil {
		return 0, "", m.postErr
	}
	m.nextMsgID++
	m.posts = append(m.posts, sentMessage{ChatID: channelID, Text: content.Text})
	return m.nextMsgID, fmt.Sprintf("https://t.me/c/%d/%d", channelID, m.nextMsgID), nil
}

func (m *fakeMessenger) EditPostButton(ctx context.Context, channelID, messageID int64, label, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.editErr != nil {
		return m.editErr
	}
	m.buttonEdits = append(m.buttonEdits, messageID)
	return nil
}

func (m *fakeMessenger) ReplyToPost(ctx context.Context, channelID, messageID int64, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.replyErr != nil {
		return m.replyErr
	}
	m.replies = append(m.replies, sentMessage{ChatID: channelID, Text: text})
	return nil
}

func (m *fakeMessenger) SendMessage(ctx context.Context, chatID int64, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.sendErrFor[chatID]; err != nil {
		return err
	}
	m.messages = append(m.messages, sentMessage{ChatID: chatID, Text: text})
	return nil
}

func (m *fakeMessenger) SendPhoto(ctx context.Context, chatID int64, image []byte, caption string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.photos = append(m.photos, chatID)
	return nil
}

func (m *fakeMessenger) GetMembershipStatus(ctx context.Context, channelID, userID int64) (MemberStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.membershipFn != nil {
		return m.membershipFn(channelID, userID)
	}
	if status, ok := m.memberships[membershipKey(channelID, userID)]; ok {
		return status, nil
	}
	return MemberStatusMember, nil
}

func (m *fakeMessenger) ResolveChannel(ctx context.Context, channelID int64) (*models.Channel, error) {
	return &models.Channel{
		ID:         channelID,
		Title:      fmt.Sprintf("Channel %d", channelID),
		InviteLink: fmt.Sprintf("https://t.me/channel_%d", channelID),
	}, nil
}

func (m *fakeMessenger) messagesTo(chatID int64) []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []sentMessage
	for _, msg := range m.messages {
		if msg.ChatID == chatID {
			out = append(out, msg)
		}
	}
	return out
}

type fakeUsers struct {
	mu    sync.Mutex
	users map[int64]*usermodels.User
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{users: make(map[int64]*usermodels.User)}
}

func (f *fakeUsers) Upsert(ctx context.Context, u *usermodels.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *u
	f.users[u.ID] = &cp
	return nil
}

func (f *fakeUsers) GetByID(ctx context.Context, id int64) (*usermodels.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, userrepo.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

// newTestEngine wires an engine over fresh fakes with a negligible send
// delay so notification pacing does not slow tests down.
func newTestEngine() (*Engine, *fakeRepo, *fakeParticipants, *fakeMessenger) {
	engine, repo, participants, messenger, _ := newTestEngineFull(time.Microsecond)
	return engine, repo, participants, messenger
}

// newTestEngineFull also exposes the user fake, and lets a test slow the
// send limiter down when the pacing itself is under test.
func newTestEngineFull(sendDelay time.Duration) (*Engine, *fakeRepo, *fakeParticipants, *fakeMessenger, *fakeUsers) {
	repo := newFakeRepo()
	participants := newFakeParticipants()
	messenger := newFakeMessenger()
	users := newFakeUsers()
	alerts := NewOperatorAlerts(messenger, 0)
	verifier := NewVerifier(messenger, alerts)
	engine := NewEngine(repo, participants, messenger, verifier, alerts, users, sendDelay, time.Hour)
	return engine, repo, participants, messenger, users
}

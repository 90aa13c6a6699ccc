package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"referr/internal/models"
	"referr/pkg/logger"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// In-memory repositories. Each method holds the lock for its whole body, which
// gives the same per-operation atomicity the Mongo implementations rely on.

type fakeUserRepo struct {
	mu        sync.Mutex
	users     map[primitive.ObjectID]*models.User
	createErr error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[primitive.ObjectID]*models.User)}
}

func copyUser(u *models.User) *models.User {
	c := *u
	return &c
}

func (r *fakeUserRepo) add(email, code, referredBy string) *models.User {
	u := &models.User{Email: email, ReferralCode: code, ReferredBy: referredBy}
	if err := r.Create(context.Background(), u); err != nil {
		panic(err)
	}
	return u
}

func (r *fakeUserRepo) Create(ctx context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.createErr != nil {
		return r.createErr
	}
	for _, u := range r.users {
		if u.Email == user.Email || u.ReferralCode == user.ReferralCode {
			return fmt.Errorf("duplicate key: %w", models.ErrConflict)
		}
	}

	user.ID = primitive.NewObjectID()
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	r.users[user.ID] = copyUser(user)
	return nil
}

func (r *fakeUserRepo) find(match func(*models.User) bool) *models.User {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if match(u) {
			return copyUser(u)
		}
	}
	return nil
}

func (r *fakeUserRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	return r.find(func(u *models.User) bool { return u.ID == id }), nil
}

func (r *fakeUserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.find(func(u *models.User) bool { return u.Email == email }), nil
}

func (r *fakeUserRepo) GetByReferralCode(ctx context.Context, code string) (*models.User, error) {
	return r.find(func(u *models.User) bool { return u.ReferralCode == code }), nil
}

func (r *fakeUserRepo) ReferralCodeExists(ctx context.Context, code string) (bool, error) {
	return r.find(func(u *models.User) bool { return u.ReferralCode == code }) != nil, nil
}

func (r *fakeUserRepo) CompleteOnboarding(ctx context.Context, id primitive.ObjectID, profile *models.Profile) (*models.User, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return nil, false, nil
	}
	if u.HasOnboarded {
		return copyUser(u), false, nil
	}

	u.FullName = &profile.FullName
	u.State = &profile.State
	u.Country = &profile.Country
	u.HasOnboarded = true
	return copyUser(u), true, nil
}

type fakeOTPRepo struct {
	mu         sync.Mutex
	challenges map[primitive.ObjectID]*models.OTPChallenge
}

func newFakeOTPRepo() *fakeOTPRepo {
	return &fakeOTPRepo{challenges: make(map[primitive.ObjectID]*models.OTPChallenge)}
}

func (r *fakeOTPRepo) Create(ctx context.Context, challenge *models.OTPChallenge) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	challenge.ID = primitive.NewObjectID()
	c := *challenge
	r.challenges[c.ID] = &c
	return nil
}

func (r *fakeOTPRepo) DeleteByEmail(ctx context.Context, email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, c := range r.challenges {
		if c.Email == email {
			delete(r.challenges, id)
		}
	}
	return nil
}

func (r *fakeOTPRepo) FindLatestByEmail(ctx context.Context, email string) (*models.OTPChallenge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var latest *models.OTPChallenge
	for _, c := range r.challenges {
		if c.Email == email && (latest == nil || c.CreatedAt.After(latest.CreatedAt)) {
			latest = c
		}
	}
	if latest == nil {
		return nil, nil
	}
	c := *latest
	return &c, nil
}

func (r *fakeOTPRepo) Consume(ctx context.Context, challenge *models.OTPChallenge) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.challenges[challenge.ID]; !ok {
		return false, nil
	}
	delete(r.challenges, challenge.ID)
	return true, nil
}

func (r *fakeOTPRepo) Delete(ctx context.Context, challenge *models.OTPChallenge) error {
	_, err := r.Consume(ctx, challenge)
	return err
}

func (r *fakeOTPRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, c := range r.challenges {
		if c.IsExpired(now) {
			delete(r.challenges, id)
			n++
		}
	}
	return n, nil
}

func (r *fakeOTPRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.challenges)
}

type fakeStatRepo struct {
	mu    sync.Mutex
	users *fakeUserRepo
	stats map[primitive.ObjectID]*models.ReferralStat
	order map[primitive.ObjectID]int
	seq   int
}

func newFakeStatRepo(users *fakeUserRepo) *fakeStatRepo {
	return &fakeStatRepo{
		users: users,
		stats: make(map[primitive.ObjectID]*models.ReferralStat),
		order: make(map[primitive.ObjectID]int),
	}
}

// upsert must be called with the lock held.
func (r *fakeStatRepo) upsert(referrerID primitive.ObjectID, code string) *models.ReferralStat {
	s, ok := r.stats[referrerID]
	if !ok {
		s = &models.ReferralStat{ID: primitive.NewObjectID(), ReferrerID: referrerID, ReferralCode: code}
		r.stats[referrerID] = s
		r.seq++
		r.order[referrerID] = r.seq
	}
	return s
}

func copyStat(s *models.ReferralStat) *models.ReferralStat {
	c := *s
	return &c
}

func (r *fakeStatRepo) GetByReferrer(ctx context.Context, referrerID primitive.ObjectID) (*models.ReferralStat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.stats[referrerID]; ok {
		return copyStat(s), nil
	}
	return nil, nil
}

func (r *fakeStatRepo) EnsureForReferrer(ctx context.Context, referrerID primitive.ObjectID, code string) (*models.ReferralStat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return copyStat(r.upsert(referrerID, code)), nil
}

func (r *fakeStatRepo) IncrementClicks(ctx context.Context, code string) (*models.ReferralStat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.stats {
		if s.ReferralCode == code {
			s.Clicks++
			return copyStat(s), nil
		}
	}
	return nil, nil
}

func (r *fakeStatRepo) IncrementSignups(ctx context.Context, referrerID primitive.ObjectID, code string) (*models.ReferralStat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.upsert(referrerID, code)
	s.Signups++
	return copyStat(s), nil
}

func (r *fakeStatRepo) IncrementConversions(ctx context.Context, referrerID primitive.ObjectID, code string, reward float64) (*models.ReferralStat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.upsert(referrerID, code)
	s.Conversions++
	s.Earnings += reward
	return copyStat(s), nil
}

func (r *fakeStatRepo) Leaderboard(ctx context.Context, skip, limit int64) ([]*models.LeaderboardEntry, error) {
	r.mu.Lock()
	all := make([]*models.ReferralStat, 0, len(r.stats))
	for _, s := range r.stats {
		all = append(all, copyStat(s))
	}
	order := make(map[primitive.ObjectID]int, len(r.order))
	for k, v := range r.order {
		order[k] = v
	}
	r.mu.Unlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].Conversions != all[j].Conversions {
			return all[i].Conversions > all[j].Conversions
		}
		return order[all[i].ReferrerID] < order[all[j].ReferrerID]
	})

	entries := []*models.LeaderboardEntry{}
	for i := skip; i < int64(len(all)) && i < skip+limit; i++ {
		entry := &models.LeaderboardEntry{ReferrerID: all[i].ReferrerID, Conversions: all[i].Conversions}
		if u, _ := r.users.GetByID(ctx, all[i].ReferrerID); u != nil {
			entry.ReferrerName = u.FullName
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (r *fakeStatRepo) Count(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.stats)), nil
}

type sentOTP struct {
	email string
	code  string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentOTP
	err  error
}

func (m *fakeMailer) SendOTP(ctx context.Context, email, code string, validFor time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentOTP{email: email, code: code})
	return nil
}

func (m *fakeMailer) last() sentOTP {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent[len(m.sent)-1]
}

type fakeNotifier struct {
	mu     sync.Mutex
	events map[primitive.ObjectID][]*models.ReferralStat
}

func (n *fakeNotifier) SendUserNotification(userID primitive.ObjectID, notificationType string, data interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.events == nil {
		n.events = make(map[primitive.ObjectID][]*models.ReferralStat)
	}
	n.events[userID] = append(n.events[userID], data.(*models.ReferralStat))
}

// testEnv wires the services over the fakes.
type testEnv struct {
	users     *fakeUserRepo
	otps      *fakeOTPRepo
	stats     *fakeStatRepo
	mailer    *fakeMailer
	notifier  *fakeNotifier
	referrals ReferralService
	auth      *authService
	onboard   UserService
}

const testSecret = "test-secret"

func newTestEnv() *testEnv {
	log := logger.NewNop()

	env := &testEnv{
		users:    newFakeUserRepo(),
		otps:     newFakeOTPRepo(),
		mailer:   &fakeMailer{},
		notifier: &fakeNotifier{},
	}
	env.stats = newFakeStatRepo(env.users)
	env.referrals = NewReferralService(env.users, env.stats, env.notifier, ReferralSettings{RewardUnit: 10}, nil, log)
	env.auth = NewAuthService(
		env.users,
		env.otps,
		env.referrals,
		NewCodeGenerator(env.users, 10),
		env.mailer,
		AuthSettings{JWTSecret: testSecret},
		nil,
		log,
	).(*authService)
	env.onboard = NewUserService(env.users, env.referrals, log)
	return env
}

// login runs the full passcode flow for email and returns the session.
func (e *testEnv) login(email, referredBy string) (*AuthResponse, error) {
	ctx := context.Background()
	if _, err := e.auth.RequestOTP(ctx, &RequestOTPRequest{Email: email}); err != nil {
		return nil, err
	}
	return e.auth.VerifyOTP(ctx, &VerifyOTPRequest{Email: email, OTP: e.mailer.last().code, ReferredBy: referredBy})
}

func strPtr(s string) *string {
	return &s
}

package bot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goldencobra/internal/goals"
	"goldencobra/internal/logger"
	"goldencobra/internal/ranks"
	"goldencobra/internal/spending"
	"goldencobra/internal/store/memstore"
)

type countingObserver struct {
	actions map[string]int
	errors  map[string]int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{actions: map[string]int{}, errors: map[string]int{}}
}

func (o *countingObserver) ObserveAction(action string) { o.actions[action]++ }
func (o *countingObserver) ObserveError(kind string)    { o.errors[kind]++ }

func setupRouter(t *testing.T, cfg Config) (*Router, *memstore.Store, *countingObserver) {
	t.Helper()
	store := memstore.New()
	svc := spending.NewService(store, ranks.Default(), goals.Default())
	obs := newCountingObserver()
	if cfg.SpendPresets == nil {
		cfg.SpendPresets = []int64{100, 500, 1000, 5000, 10000}
	}
	return NewRouter(svc, cfg, obs, zerolog.Nop()), store, obs
}

func act(identity, name, action, payload string) Action {
	return Action{UserIdentity: identity, DisplayName: name, Action: action, Payload: payload}
}

func TestStartRegistersUser(t *testing.T) {
	r, store, _ := setupRouter(t, Config{WebURL: "https://cobra.example/"})
	ctx := context.Background()

	reply, err := r.Handle(ctx, act("1", "alice", ActionStart, ""))
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "GOLDEN COBRA")
	assert.Contains(t, reply.Text, "Нет данных")
	assert.Contains(t, reply.Text, "Баланс: 0 XTR")
	assert.Contains(t, reply.Text, "Новичок 🐍")

	require.Len(t, reply.Buttons, 3)
	assert.Equal(t, "https://cobra.example/nft-shop.html", reply.Buttons[2][0].URL)

	user, err := store.GetUser(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.DisplayName)
}

func TestStartShowsLeader(t *testing.T) {
	r, _, _ := setupRouter(t, Config{})
	ctx := context.Background()

	_, err := r.Handle(ctx, act("1", "alice", ActionSpend, "1500"))
	require.NoError(t, err)

	reply, err := r.Handle(ctx, act("2", "bob", ActionStart, ""))
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "👑 @alice — 1,500 XTR")
	assert.Len(t, reply.Buttons, 2, "no shop button without a web url")
}

func TestSpendMenu(t *testing.T) {
	r, _, _ := setupRouter(t, Config{})

	reply, err := r.Handle(context.Background(), act("1", "", ActionSpendMenu, ""))
	require.NoError(t, err)
	require.Len(t, reply.Buttons, 6)
	assert.Equal(t, Button{Text: "100 XTR", Action: ActionSpend, Payload: "100"}, reply.Buttons[0][0])
	assert.Equal(t, Button{Text: "10,000 XTR", Action: ActionSpend, Payload: "10000"}, reply.Buttons[4][0])
	assert.Equal(t, PayloadOther, reply.Buttons[5][0].Payload)
}

func TestSpendOtherPrompts(t *testing.T) {
	r, store, _ := setupRouter(t, Config{})
	ctx := context.Background()

	reply, err := r.Handle(ctx, act("1", "", ActionSpend, PayloadOther))
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "цифрами")

	_, err = store.GetUser(ctx, "1")
	assert.ErrorIs(t, err, spending.ErrNotFound, "prompt must not record anything")
}

func TestSpendRankUp(t *testing.T) {
	r, _, _ := setupRouter(t, Config{})

	reply, err := r.Handle(context.Background(), act("1", "alice", ActionSpend, "150"))
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "Успешно потрачено 150 XTR")
	assert.Contains(t, reply.Text, "Новый баланс: 150 XTR")
	assert.Contains(t, reply.Text, "Показушник 💫")
	assert.Contains(t, reply.Text, "Поздравляем")
}

func TestSpendWithoutRankUp(t *testing.T) {
	r, _, _ := setupRouter(t, Config{})
	ctx := context.Background()

	_, err := r.Handle(ctx, act("1", "", ActionSpend, "900"))
	require.NoError(t, err)
	reply, err := r.Handle(ctx, act("1", "", ActionSpend, "50"))
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "Новый баланс: 950 XTR")
	assert.NotContains(t, reply.Text, "Поздравляем")
}

func TestSpendCrossesGoal(t *testing.T) {
	r, _, _ := setupRouter(t, Config{})
	ctx := context.Background()

	_, err := r.Handle(ctx, act("1", "", ActionSpend, "9900"))
	require.NoError(t, err)
	reply, err := r.Handle(ctx, act("2", "", ActionSpend, "200"))
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "Достигнута цель сообщества")
	assert.Contains(t, reply.Text, goals.Default().All()[0].Reward)
}

func TestSpendInvalidAmount(t *testing.T) {
	r, store, obs := setupRouter(t, Config{})
	ctx := context.Background()

	payloads := []string{"abc", "-5", "0", "", "1e20000000", "1,000"}
	for _, payload := range payloads {
		reply, err := r.Handle(ctx, act("1", "", ActionSpend, payload))
		require.ErrorIs(t, err, spending.ErrValidation, payload)
		assert.Contains(t, reply.Text, "Неверный формат суммы", payload)
	}
	assert.Equal(t, len(payloads), obs.errors[KindValidation])

	total, err := store.TotalSpent(ctx)
	require.NoError(t, err)
	assert.True(t, total.IsZero())
}

func TestSpendReasonIsTranslated(t *testing.T) {
	r, _, _ := setupRouter(t, Config{})

	reply, err := r.Handle(context.Background(), act("1", "", ActionSpend, "-5"))
	require.Error(t, err)
	assert.Contains(t, reply.Text, "больше нуля")

	reply, err = r.Handle(context.Background(), act("1", "", ActionSpend, "1,000"))
	require.Error(t, err)
	assert.Contains(t, reply.Text, "без разделителей")
}

func TestRating(t *testing.T) {
	r, _, _ := setupRouter(t, Config{LeaderboardSize: 10})
	ctx := context.Background()

	reply, err := r.Handle(ctx, act("1", "", ActionRating, ""))
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "Рейтинг пуст")

	_, err = r.Handle(ctx, act("1", "alice", ActionSpend, "500"))
	require.NoError(t, err)
	_, err = r.Handle(ctx, act("2", "", ActionSpend, "200"))
	require.NoError(t, err)

	reply, err = r.Handle(ctx, act("1", "", ActionRating, ""))
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "ТОП-10")
	assert.Contains(t, reply.Text, "👑 @alice — 500 XTR")
	assert.Contains(t, reply.Text, "2. Пользователь 2 — 200 XTR")
}

func TestMyRank(t *testing.T) {
	r, _, _ := setupRouter(t, Config{})
	ctx := context.Background()

	_, err := r.Handle(ctx, act("1", "", ActionSpend, "150"))
	require.NoError(t, err)

	reply, err := r.Handle(ctx, act("1", "", ActionMyRank, ""))
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "Показушник 💫")
	assert.Contains(t, reply.Text, "До ранга Сжигатель 🔥 осталось 850 XTR")

	_, err = r.Handle(ctx, act("2", "", ActionSpend, "50000"))
	require.NoError(t, err)
	reply, err = r.Handle(ctx, act("2", "", ActionMyRank, ""))
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "высшего ранга")
}

func TestGoals(t *testing.T) {
	r, _, _ := setupRouter(t, Config{})
	ctx := context.Background()

	_, err := r.Handle(ctx, act("1", "", ActionSpend, "12000"))
	require.NoError(t, err)

	reply, err := r.Handle(ctx, act("1", "", ActionGoals, ""))
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "Всего потрачено: 12,000 XTR")
	assert.Contains(t, reply.Text, "✅ 10,000 XTR")
	assert.Contains(t, reply.Text, "⬜ 50,000 XTR")
	assert.Contains(t, reply.Text, "До следующей цели: 38,000 XTR")
}

func TestHistory(t *testing.T) {
	r, _, _ := setupRouter(t, Config{})
	ctx := context.Background()

	_, err := r.Handle(ctx, act("1", "", ActionStart, ""))
	require.NoError(t, err)
	reply, err := r.Handle(ctx, act("1", "", ActionHistory, ""))
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "История пуста")

	_, err = r.Handle(ctx, act("1", "", ActionSpend, "100"))
	require.NoError(t, err)
	_, err = r.Handle(ctx, act("1", "", ActionSpend, "250,5"))
	require.NoError(t, err)

	reply, err = r.Handle(ctx, act("1", "", ActionHistory, ""))
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "250.50 XTR")
	assert.Contains(t, reply.Text, "100 XTR")
}

func TestHistoryUnknownUser(t *testing.T) {
	r, _, _ := setupRouter(t, Config{})

	reply, err := r.Handle(context.Background(), act("404", "", ActionHistory, ""))
	assert.ErrorIs(t, err, spending.ErrNotFound)
	assert.Contains(t, reply.Text, "/start")
}

func TestUnknownAction(t *testing.T) {
	r, _, obs := setupRouter(t, Config{})

	reply, err := r.Handle(context.Background(), act("1", "", "dance", ""))
	assert.ErrorIs(t, err, ErrUnknownAction)
	assert.Equal(t, KindUnknownAction, ErrorKind(err))
	assert.Contains(t, reply.Text, "Неизвестная команда")
	assert.Equal(t, 1, obs.actions["dance"])
	assert.Equal(t, 1, obs.errors[KindUnknownAction])
}

func TestMissingIdentity(t *testing.T) {
	r, _, _ := setupRouter(t, Config{})

	_, err := r.Handle(context.Background(), act("", "", ActionStart, ""))
	assert.ErrorIs(t, err, spending.ErrValidation)
}

func TestStoreUnavailable(t *testing.T) {
	var buf bytes.Buffer
	store := memstore.New()
	svc := spending.NewService(store, ranks.Default(), goals.Default())
	r := NewRouter(svc, Config{}, nil, logger.NewWithWriter(&buf))
	require.NoError(t, store.Close())

	reply, err := r.Handle(context.Background(), Action{RequestID: "req-1", UserIdentity: "1", Action: ActionSpend, Payload: "100"})
	assert.ErrorIs(t, err, spending.ErrStoreUnavailable)
	assert.Contains(t, reply.Text, "Попробуйте позже")
	assert.Contains(t, buf.String(), `"level":"error"`)
	assert.Contains(t, buf.String(), `"request_id":"req-1"`)
	assert.Contains(t, buf.String(), `"kind":"unavailable"`)
}

func TestRateLimited(t *testing.T) {
	r, _, obs := setupRouter(t, Config{RatePerMinute: 1, Burst: 2})
	ctx := context.Background()

	for range 2 {
		_, err := r.Handle(ctx, act("1", "", ActionSpendMenu, ""))
		require.NoError(t, err)
	}
	reply, err := r.Handle(ctx, act("1", "", ActionSpendMenu, ""))
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Contains(t, reply.Text, "Слишком много запросов")
	assert.Equal(t, 1, obs.errors[KindRateLimited])

	_, err = r.Handle(ctx, act("2", "", ActionSpendMenu, ""))
	assert.NoError(t, err, "limits are per user")
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&spending.ValidationError{Field: "amount"}, KindValidation},
		{spending.ErrNotFound, KindNotFound},
		{spending.Unavailable("ping", errors.New("refused")), KindUnavailable},
		{ErrRateLimited, KindRateLimited},
		{errors.New("boom"), KindInternal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ErrorKind(tt.err), tt.err.Error())
	}
}

func TestFormatStars(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0", "0"},
		{"100", "100"},
		{"1500", "1,500"},
		{"1000000", "1,000,000"},
		{"1500.5", "1,500.50"},
		{"999.99", "999.99"},
		{"-2500", "-2,500"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatStars(decimal.RequireFromString(tt.in)), tt.in)
	}
}

func TestLimiterPrunesIdleUsers(t *testing.T) {
	l := NewLimiter(60, 1)
	now := time.Unix(0, 0)
	l.now = func() time.Time { return now }

	for i := range maxTrackedUsers {
		l.Allow(fmt.Sprintf("user-%d", i))
	}
	assert.Equal(t, maxTrackedUsers, l.tracked())

	now = now.Add(time.Minute)
	assert.True(t, l.Allow("fresh"))
	assert.Equal(t, 1, l.tracked())
}

func TestLimiterDisabled(t *testing.T) {
	l := NewLimiter(0, 0)
	for range 100 {
		require.True(t, l.Allow("1"))
	}
	assert.Zero(t, l.tracked())
}

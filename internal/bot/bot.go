// internal/bot/bot.go

// Package bot turns inbound chat actions into replies.
//
// Every action is answered: failures are logged, counted and rendered as a
// user-facing message, and the classified error is returned alongside the
// reply so transports can map it (e.g. to an HTTP status).
package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"goldencobra/internal/spending"
)

// Action names understood by the router.
const (
	ActionStart     = "start"
	ActionSpendMenu = "spend_menu"
	ActionSpend     = "spend"
	ActionRating    = "rating"
	ActionMyRank    = "my_rank"
	ActionGoals     = "goals"
	ActionHistory   = "history"

	// PayloadOther asks for a free-form amount.
	PayloadOther = "other"
)

const historySize = 10

// Action is one inbound event from a chat platform.
type Action struct {
	RequestID    string `json:"request_id,omitempty"`
	UserIdentity string `json:"user_identity"`
	DisplayName  string `json:"display_name,omitempty"`
	Action       string `json:"action"`
	Payload      string `json:"payload,omitempty"`
}

// Button is an inline button. It either triggers an action or opens URL.
type Button struct {
	Text    string `json:"text"`
	Action  string `json:"action,omitempty"`
	Payload string `json:"payload,omitempty"`
	URL     string `json:"url,omitempty"`
}

// Reply is the text and keyboard sent back to the user.
type Reply struct {
	Text    string     `json:"text"`
	Buttons [][]Button `json:"buttons,omitempty"`
}

// Observer counts handled actions and their failures.
type Observer interface {
	ObserveAction(action string)
	ObserveError(kind string)
}

// Config holds the presentation settings of the router.
type Config struct {
	WebURL          string
	SpendPresets    []int64
	LeaderboardSize int
	RatePerMinute   int
	Burst           int
}

// Router dispatches actions to the spending service.
type Router struct {
	svc      spending.Service
	cfg      Config
	limiter  *Limiter
	observer Observer
	log      zerolog.Logger
}

// NewRouter builds a router. observer may be nil.
func NewRouter(svc spending.Service, cfg Config, observer Observer, log zerolog.Logger) *Router {
	if cfg.LeaderboardSize <= 0 {
		cfg.LeaderboardSize = 10
	}
	return &Router{
		svc:      svc,
		cfg:      cfg,
		limiter:  NewLimiter(cfg.RatePerMinute, cfg.Burst),
		observer: observer,
		log:      log,
	}
}

// Handle answers a. The reply is always non-nil; err is the classified
// failure, if any.
func (r *Router) Handle(ctx context.Context, a Action) (*Reply, error) {
	if a.RequestID == "" {
		a.RequestID = uuid.NewString()
	}
	log := r.log.With().
		Str("request_id", a.RequestID).
		Str("identity", a.UserIdentity).
		Str("action", a.Action).
		Logger()

	if r.observer != nil {
		r.observer.ObserveAction(a.Action)
	}

	reply, err := r.dispatch(ctx, a)
	if err != nil {
		kind := ErrorKind(err)
		if r.observer != nil {
			r.observer.ObserveError(kind)
		}
		ev := log.Warn()
		if kind == KindUnavailable || kind == KindInternal {
			ev = log.Error()
		}
		ev.Err(err).Str("kind", kind).Msg("action failed")
		return &Reply{Text: userMessage(err), Buttons: menuButtons(r.cfg.WebURL)}, err
	}

	log.Debug().Msg("action handled")
	return reply, nil
}

func (r *Router) dispatch(ctx context.Context, a Action) (*Reply, error) {
	if a.UserIdentity == "" {
		return nil, &spending.ValidationError{Field: "identity", Reason: "empty"}
	}
	if !r.limiter.Allow(a.UserIdentity) {
		return nil, ErrRateLimited
	}

	switch a.Action {
	case ActionStart:
		return r.start(ctx, a)
	case ActionSpendMenu:
		return r.spendMenu(), nil
	case ActionSpend:
		return r.spend(ctx, a)
	case ActionRating:
		return r.rating(ctx)
	case ActionMyRank:
		return r.myRank(ctx, a)
	case ActionGoals:
		return r.goals(ctx)
	case ActionHistory:
		return r.history(ctx, a)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, a.Action)
	}
}

func (r *Router) start(ctx context.Context, a Action) (*Reply, error) {
	user, err := r.svc.GetOrCreateUser(ctx, a.UserIdentity, a.DisplayName)
	if err != nil {
		return nil, err
	}
	top, err := r.svc.TopUsers(ctx, 1)
	if err != nil {
		return nil, err
	}

	leader := "Нет данных"
	if len(top) > 0 {
		leader = fmt.Sprintf("👑 %s — %s XTR", displayName(top[0], 1), FormatStars(top[0].Spent))
	}
	rank := r.svc.Ranks().Resolve(user.Spent)

	var b strings.Builder
	b.WriteString("🔥 *GOLDEN COBRA* 🔥\n\n")
	b.WriteString("*Добро пожаловать в элитный клуб!*\n\n")
	b.WriteString("Здесь статус измеряется в звёздах (XTR).\n")
	b.WriteString("Тратьте звёзды, чтобы:\n")
	b.WriteString("• Подниматься в рейтинге\n")
	b.WriteString("• Выигрывать эксклюзивные NFT\n")
	b.WriteString("• Получать подарки от Telegram\n")
	b.WriteString("• Понтоваться перед другими\n\n")
	fmt.Fprintf(&b, "*Текущий лидер:*\n%s\n\n", leader)
	fmt.Fprintf(&b, "*Ваш статус:*\nБаланс: %s XTR\nРанг: %s", FormatStars(user.Spent), rank.Title())

	return &Reply{Text: b.String(), Buttons: menuButtons(r.cfg.WebURL)}, nil
}

func (r *Router) spendMenu() *Reply {
	rows := make([][]Button, 0, len(r.cfg.SpendPresets)+1)
	for _, p := range r.cfg.SpendPresets {
		amount := decimal.NewFromInt(p)
		rows = append(rows, []Button{{
			Text:    FormatStars(amount) + " XTR",
			Action:  ActionSpend,
			Payload: amount.String(),
		}})
	}
	rows = append(rows, []Button{{Text: "Другая сумма", Action: ActionSpend, Payload: PayloadOther}})

	return &Reply{
		Text: "🔥 *Сколько звёзд хотите потратить?*\n\n" +
			"Каждая потраченная звезда приближает вас к эксклюзивным наградам!",
		Buttons: rows,
	}
}

func (r *Router) spend(ctx context.Context, a Action) (*Reply, error) {
	if strings.EqualFold(strings.TrimSpace(a.Payload), PayloadOther) {
		return &Reply{Text: "Введите количество звезд цифрами (например: 1500):"}, nil
	}

	result, err := r.svc.Spend(ctx, a.UserIdentity, a.DisplayName, a.Payload)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "✅ *Успешно потрачено %s XTR!*\n\n", FormatStars(result.Transaction.Amount))
	fmt.Fprintf(&b, "Новый баланс: %s XTR\nРанг: %s", FormatStars(result.NewBalance), result.NewRank.Title())
	if result.RankUp {
		b.WriteString("\n\n🎉 *Поздравляем! Вы получили новый ранг!*")
	}
	for _, g := range result.CrossedGoals {
		fmt.Fprintf(&b, "\n\n🎯 *Достигнута цель сообщества!*\n%s", g.Reward)
	}

	return &Reply{Text: b.String(), Buttons: menuButtons(r.cfg.WebURL)}, nil
}

func (r *Router) rating(ctx context.Context) (*Reply, error) {
	top, err := r.svc.TopUsers(ctx, r.cfg.LeaderboardSize)
	if err != nil {
		return nil, err
	}
	if len(top) == 0 {
		return &Reply{Text: "📊 *Рейтинг пуст*\n\nСтаньте первым, потратив звезды!"}, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🏆 *ТОП-%d ПОТРАТИВШИХ*\n\n", r.cfg.LeaderboardSize)
	for i, u := range top {
		fmt.Fprintf(&b, "%s %s — %s XTR\n", position(i+1), displayName(u, i+1), FormatStars(u.Spent))
	}
	return &Reply{Text: b.String()}, nil
}

func (r *Router) myRank(ctx context.Context, a Action) (*Reply, error) {
	user, err := r.svc.GetOrCreateUser(ctx, a.UserIdentity, a.DisplayName)
	if err != nil {
		return nil, err
	}
	table := r.svc.Ranks()
	rank := table.Resolve(user.Spent)

	var b strings.Builder
	fmt.Fprintf(&b, "🏆 *Ваш ранг:* %s\n\nПотрачено: %s XTR", rank.Title(), FormatStars(user.Spent))
	if next, ok := table.Next(rank); ok {
		left := next.Threshold.Sub(user.Spent)
		fmt.Fprintf(&b, "\n\nДо ранга %s осталось %s XTR", next.Title(), FormatStars(left))
	} else {
		b.WriteString("\n\nВы достигли высшего ранга!")
	}
	return &Reply{Text: b.String()}, nil
}

func (r *Router) goals(ctx context.Context) (*Reply, error) {
	total, err := r.svc.TotalSpent(ctx)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🎯 *Цели сообщества*\n\nВсего потрачено: %s XTR\n\n", FormatStars(total))
	for _, g := range r.svc.Goals().All() {
		mark := "⬜"
		if g.Reached(total) {
			mark = "✅"
		}
		fmt.Fprintf(&b, "%s %s XTR — %s\n", mark, FormatStars(g.Target), g.Reward)
	}
	if _, next, ok := r.svc.Goals().Progress(total); ok {
		fmt.Fprintf(&b, "\nДо следующей цели: %s XTR", FormatStars(next.Target.Sub(total)))
	}
	return &Reply{Text: b.String()}, nil
}

func (r *Router) history(ctx context.Context, a Action) (*Reply, error) {
	txs, err := r.svc.History(ctx, a.UserIdentity, historySize)
	if err != nil {
		return nil, err
	}
	if len(txs) == 0 {
		return &Reply{Text: "📜 История пуста"}, nil
	}

	var b strings.Builder
	b.WriteString("📜 *Последние траты*\n\n")
	for _, tx := range txs {
		fmt.Fprintf(&b, "%s — %s XTR\n", tx.CreatedAt.Format("02.01.2006 15:04"), FormatStars(tx.Amount))
	}
	return &Reply{Text: b.String()}, nil
}

func menuButtons(webURL string) [][]Button {
	rows := [][]Button{
		{{Text: "💰 Потратить звёзды", Action: ActionSpendMenu}, {Text: "📊 Рейтинг", Action: ActionRating}},
		{{Text: "🏆 Мой ранг", Action: ActionMyRank}, {Text: "🎯 Цели", Action: ActionGoals}},
	}
	if webURL != "" {
		rows = append(rows, []Button{{Text: "🎁 NFT Магазин", URL: strings.TrimRight(webURL, "/") + "/nft-shop.html"}})
	}
	return rows
}

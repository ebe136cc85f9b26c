package module

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/arbovm/levenshtein"
	"github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/Oppen/mediabot/bot"
)

// Go doesn't have superb support for runtime modules.
// Once loaded, you can't unload it, and it only initializes once.
// Thus, we only care about modules as a way to structure code.
// Any new functionality should register a `Module` with `RegisterModule` to be
// able to initialize all parts that depend on the main configuration and/or
// the connection with Telegram to be up.
// This should be done in the `init` function of each package.
// Most of the work done in `Init` should point towards properly installing the
// handlers.
type Module interface {
	Init(*bot.Bot) error
}

var (
	mx                 sync.RWMutex
	moduleInitializers = []Module{}
	loaded             = []string{}
)

func InitModules(b *bot.Bot) {
	mx.Lock()
	mods := append([]Module(nil), moduleInitializers...)
	mx.Unlock()

	for _, m := range mods {
		moduleName := reflect.TypeOf(m).String()
		b.Log.Info("initializing module", zap.String("module", moduleName))
		if err := m.Init(b); err != nil {
			b.Log.Error("module initialization failed", zap.String("module", moduleName), zap.Error(err))
			continue
		}
		mx.Lock()
		loaded = append(loaded, moduleName)
		mx.Unlock()
	}
}

func RegisterModule(module Module) {
	mx.Lock()
	defer mx.Unlock()
	moduleInitializers = append(moduleInitializers, module)
}

// Modules lists the modules whose Init succeeded.
func Modules() []string {
	mx.RLock()
	defer mx.RUnlock()
	return append([]string(nil), loaded...)
}

// Generally, what we refer as "functionality" is really one or more commands.
// Those should be registered by the module's `Init` function by calling
// `RegisterCommandHandler` with the command name and a `CommandHandler`.
// A module may register as many handlers as it sees fit.
// `CommandHandler`s implement a `Help` method that returns a description of
// what it does and usage instructions and a `HandleCommand` one that responds
// to an update.
// It also needs to tell whether it requires privileges to run, by
// implementing `RequiresPrivileges`, and if it needs to be batched and move on
// with `TakesLong`. Privileges are checked by the dispatcher.
type CommandHandler interface {
	HandleCommand(context.Context, *bot.Bot, *tgbotapi.Update)
	Help() string
	TakesLong() bool
	RequiresPrivileges() bool
}

// MessageHandler sees every message that is not a command. It decides by
// itself whether the message is of interest.
type MessageHandler interface {
	HandleMessage(context.Context, *bot.Bot, *tgbotapi.Update)
}

// CallbackHandler answers inline keyboard presses whose data starts with the
// prefix it was registered with.
type CallbackHandler interface {
	HandleCallback(context.Context, *bot.Bot, *tgbotapi.Update)
}

var (
	handlers         = make(map[string]CommandHandler)
	messageHandlers  = []MessageHandler{}
	callbackHandlers = make(map[string]CallbackHandler)
)

// This should be called by either init functions of packages or
// by tests to provide a mock or similar functionality.
func RegisterCommandHandler(cmd string, handler CommandHandler) {
	mx.Lock()
	defer mx.Unlock()
	handlers[cmd] = handler
}

func RegisterMessageHandler(handler MessageHandler) {
	mx.Lock()
	defer mx.Unlock()
	messageHandlers = append(messageHandlers, handler)
}

func RegisterCallbackHandler(prefix string, handler CallbackHandler) {
	mx.Lock()
	defer mx.Unlock()
	callbackHandlers[prefix] = handler
}

// Commands returns the registered command names, sorted.
func Commands() []string {
	mx.RLock()
	defer mx.RUnlock()
	cmds := make([]string, 0, len(handlers))
	for cmd := range handlers {
		cmds = append(cmds, cmd)
	}
	sort.Strings(cmds)
	return cmds
}

// For unknown commands.
type InvalidCommandHandler struct {
	Suggestion string
}

var _ CommandHandler = InvalidCommandHandler{}

func (h InvalidCommandHandler) HandleCommand(_ context.Context, b *bot.Bot, u *tgbotapi.Update) {
	// Groups get commands meant for other bots too.
	if !u.Message.Chat.IsPrivate() {
		return
	}
	msgText := fmt.Sprintf("/%s: unknown command", u.Message.Command())
	if h.Suggestion != "" {
		msgText += fmt.Sprintf(", did you mean /%s?", h.Suggestion)
	}
	if _, err := b.Reply(u.Message, msgText); err != nil {
		b.Log.Error("reply failed", zap.Error(err))
	}
}
func (InvalidCommandHandler) Help() string {
	return "invalid command"
}
func (InvalidCommandHandler) TakesLong() bool {
	return false
}
func (InvalidCommandHandler) RequiresPrivileges() bool {
	return false
}

// Convenience type to embed in handlers that have a "default" behavior, i.e.,
// don't require special privileges nor do they take longer than otherwise
// acceptable, so they don't have to deal with this boilerplate.
type DefaultCommandHandler struct{}

var _ CommandHandler = DefaultCommandHandler{}

func (DefaultCommandHandler) HandleCommand(_ context.Context, b *bot.Bot, u *tgbotapi.Update) {
	msgText := fmt.Sprintf("/%s: not implemented yet", u.Message.Command())
	if _, err := b.Reply(u.Message, msgText); err != nil {
		b.Log.Error("reply failed", zap.Error(err))
	}
}
func (DefaultCommandHandler) Help() string {
	return "not implemented"
}
func (DefaultCommandHandler) TakesLong() bool {
	return false
}
func (DefaultCommandHandler) RequiresPrivileges() bool {
	return false
}

// AdminCommandHandler is DefaultCommandHandler for admin-only commands.
type AdminCommandHandler struct {
	DefaultCommandHandler
}

func (AdminCommandHandler) RequiresPrivileges() bool {
	return true
}

// maxSuggestDistance bounds how far a typo may be from a real command.
const maxSuggestDistance = 3

// suggest returns the registered command closest to cmd, if close enough.
func suggest(cmd string) string {
	best, bestDist := "", maxSuggestDistance+1
	for _, known := range Commands() {
		d := levenshtein.Distance(strings.ToLower(cmd), known)
		if d < bestDist {
			best, bestDist = known, d
		}
	}
	return best
}

// This will be called by a worker when a command arrives.
func GetCommandHandler(cmd string) CommandHandler {
	mx.RLock()
	handler, ok := handlers[cmd]
	mx.RUnlock()
	if !ok {
		return InvalidCommandHandler{Suggestion: suggest(cmd)}
	}
	return handler
}

// GetCallbackHandler finds the handler for the callback data. Data is either
// the bare prefix or the prefix, a colon and an argument.
func GetCallbackHandler(data string) (CallbackHandler, bool) {
	prefix, _, _ := strings.Cut(data, ":")
	mx.RLock()
	defer mx.RUnlock()
	h, ok := callbackHandlers[prefix]
	return h, ok
}

func MessageHandlers() []MessageHandler {
	mx.RLock()
	defer mx.RUnlock()
	return append([]MessageHandler(nil), messageHandlers...)
}

package notification

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

const (
	// KindOTPSent is emitted when a login or activation code was requested.
	KindOTPSent = "otp_sent"
	// KindWalletVerified is emitted after wallet activation succeeds.
	KindWalletVerified = "wallet_verified"
	// KindPaymentCompleted is emitted after a payment is accepted.
	KindPaymentCompleted = "payment_completed"
	// KindPINChanged is emitted when the transaction PIN is enabled or disabled.
	KindPINChanged = "pin_changed"
	// KindProfileUpdated is emitted after KYC details or documents are accepted.
	KindProfileUpdated = "profile_updated"
	// KindServerError carries a server message verbatim.
	KindServerError = "server_error"
)

// Message describes a user-visible notice.
type Message struct {
	Kind        string
	Destination string
	Body        string
}

// Notifier delivers notices to whatever surface shows them.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes notices to the structured logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification", "kind", message.Kind, "destination", message.Destination, "body", message.Body)
	return nil
}

// WriterNotifier prints one line per notice, e.g. to a terminal.
type WriterNotifier struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterNotifier constructs a notifier writing to w.
func NewWriterNotifier(w io.Writer) *WriterNotifier {
	return &WriterNotifier{w: w}
}

// Send prints the message body.
func (n *WriterNotifier) Send(_ context.Context, message Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, err := fmt.Fprintf(n.w, "» %s\n", message.Body)
	return err
}

// Recorder keeps every notice in memory.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
}

// Send records the message.
func (r *Recorder) Send(_ context.Context, message Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message)
	return nil
}

// Messages returns a copy of what was recorded.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}

// Kinds lists the recorded kinds in order.
func (r *Recorder) Kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]string, len(r.messages))
	for i, m := range r.messages {
		kinds[i] = m.Kind
	}
	return kinds
}

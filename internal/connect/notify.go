package connect

// Notifier shows a blocking message to the user, the way a UI alert would.
type Notifier interface {
	Alert(msg string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(msg string)

func (f NotifierFunc) Alert(msg string) { f(msg) }

type discardNotifier struct{}

func (discardNotifier) Alert(string) {}

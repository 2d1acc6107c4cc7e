package view

import (
	"errors"

	"github.com/dukerupert/cvewatch/internal/gateway"
	"github.com/dukerupert/cvewatch/internal/model"
	"github.com/dukerupert/cvewatch/internal/syncer"
)

type NoticeKind string

const (
	NoticeSuccess NoticeKind = "success"
	NoticeError   NoticeKind = "error"
)

// Notice is a user-visible result of an action.
type Notice struct {
	Action string     `json:"action"`
	Kind   NoticeKind `json:"kind"`
	Text   string     `json:"text"`
}

const (
	msgEmptyEmail      = "Wprowadź adres email"
	msgBusy            = "Operacja w toku, spróbuj ponownie"
	msgUnknownSeverity = "Nieznany poziom ważności"
	msgClosed          = "Klient jest zamykany"
)

var successText = map[syncer.Action]string{
	syncer.ActionManualScrape:     "Scraping ukończony pomyślnie!",
	syncer.ActionSubscribe:        "Email dodany pomyślnie!",
	syncer.ActionUnsubscribe:      "Email usunięty pomyślnie!",
	syncer.ActionGenerateTimeline: "Timeline wygenerowany",
	syncer.ActionSeverity:         "Filtr zmieniony",
	syncer.ActionBulkLoad:         "Dane odświeżone",
}

var failureText = map[syncer.Action]string{
	syncer.ActionManualScrape:     "Błąd podczas scrapingu!",
	syncer.ActionSubscribe:        "Błąd podczas dodawania email",
	syncer.ActionUnsubscribe:      "Błąd podczas usuwania email",
	syncer.ActionSendTest:         "Błąd wysyłania test email",
	syncer.ActionGenerateTimeline: "Błąd generowania timeline",
	syncer.ActionSeverity:         "Błąd ładowania CVE",
	syncer.ActionBulkLoad:         "Błąd odświeżania danych",
}

// Success returns the notice for a completed action. email is only used by
// the send-test message.
func Success(a syncer.Action, email string) Notice {
	text := successText[a]
	if a == syncer.ActionSendTest {
		text = "Test email wysłany na " + email + "!"
	}
	return Notice{Action: string(a), Kind: NoticeSuccess, Text: text}
}

// Failure returns the notice for a failed action. A message sent by the
// backend is shown as is; otherwise the localized fallback is used.
func Failure(a syncer.Action, err error) Notice {
	return Notice{Action: string(a), Kind: NoticeError, Text: failureMessage(a, err)}
}

func failureMessage(a syncer.Action, err error) string {
	switch {
	case errors.Is(err, syncer.ErrBusy), errors.Is(err, syncer.ErrActionInFlight):
		return msgBusy
	case errors.Is(err, syncer.ErrClosed):
		return msgClosed
	}

	var ve *model.ValidationError
	if errors.As(err, &ve) {
		switch ve.Field {
		case "email":
			return msgEmptyEmail
		case "severity":
			return msgUnknownSeverity
		}
	}

	if detail := gateway.Detail(err); detail != "" {
		return detail
	}
	if text, ok := failureText[a]; ok {
		return text
	}
	return "Błąd"
}

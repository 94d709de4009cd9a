package review

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/akozyrev/docintake/internal/journal"
)

// HuhPrompter asks the operator through standalone terminal forms.
type HuhPrompter struct{}

func (HuhPrompter) Decide(item Item, nextNumber int) (Decision, error) {
	var choice Decision

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[Decision]().
				Title(fmt.Sprintf("Письмо: %s", item.Subject)).
				Description(fmt.Sprintf("От: %s\nСтраниц в PDF: %d\nСледующий номер: %s",
					item.Sender, item.Pages, journal.Label(nextNumber))).
				Options(
					huh.NewOption("Зарегистрировать под "+journal.Label(nextNumber), DecisionRegister),
					huh.NewOption("Скачать без регистрации", DecisionDownload),
					huh.NewOption("Пропустить (удалить)", DecisionSkip),
				).
				Value(&choice),
		),
	)
	if err := form.Run(); err != nil {
		return DecisionSkip, fmt.Errorf("decision prompt: %w", err)
	}
	return choice, nil
}

func (HuhPrompter) RetryAfterError(path string, cause error) (bool, error) {
	retry := true

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Не удалось сохранить файл").
				Description(fmt.Sprintf("%s\n%v\n\nЗакройте файл в программе просмотра и повторите.", path, cause)).
				Affirmative("Повторить").
				Negative("Отменить").
				Value(&retry),
		),
	)
	if err := form.Run(); err != nil {
		return false, fmt.Errorf("retry prompt: %w", err)
	}
	return retry, nil
}

// PromptLastNumber asks for the last used incoming number. The suggested
// default comes from the registration ledger.
func PromptLastNumber(suggested int) (int, error) {
	value := strconv.Itoa(suggested)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Последний использованный входящий номер").
				Description("Нумерация продолжится со следующего номера").
				Value(&value).
				Validate(func(s string) error {
					n, err := strconv.Atoi(strings.TrimSpace(s))
					if err != nil {
						return fmt.Errorf("введите целое число")
					}
					if n < 0 {
						return fmt.Errorf("номер не может быть отрицательным")
					}
					return nil
				}),
		),
	)
	if err := form.Run(); err != nil {
		return 0, fmt.Errorf("number prompt: %w", err)
	}
	return strconv.Atoi(strings.TrimSpace(value))
}

package prompt

import (
	"errors"
	"io"
	"os"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
)

type Survey struct {
	opts []survey.AskOpt
}

func NewSurveyAsker(in, out *os.File, errOut io.Writer) *Survey {
	return &Survey{
		opts: []survey.AskOpt{
			survey.WithStdio(in, out, errOut),
			survey.WithValidator(survey.Required),
		},
	}
}

func (s *Survey) askOne(p survey.Prompt) (string, error) {
	var answer string
	err := survey.AskOne(p, &answer, s.opts...)
	if errors.Is(err, terminal.InterruptErr) {
		return "", ErrAborted
	}
	if err != nil {
		return "", err
	}
	return answer, nil
}

func (s *Survey) AskHost() (string, error) {
	answer, err := s.askOne(&survey.Input{Message: hostMessage + ":"})
	return strings.TrimSpace(answer), err
}

func (s *Survey) AskUser() (string, error) {
	answer, err := s.askOne(&survey.Input{Message: userMessage + ":", Default: "root"})
	return strings.TrimSpace(answer), err
}

func (s *Survey) AskPassword(user, host string) (string, error) {
	return s.askOne(&survey.Password{Message: passwordMessage(user, host) + ":"})
}

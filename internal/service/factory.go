package service

type Services struct {
	runner TurnRunner
}

func NewServices(runner TurnRunner) *Services {
	return &Services{runner: runner}
}

func (s *Services) Conversations() ConversationService {
	return NewConversationService(s.runner)
}

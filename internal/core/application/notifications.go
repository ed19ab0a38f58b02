package application

import (
	"context"
	"fmt"
	"time"

	"github.com/pco-network/pco/internal/core/domain"
	log "github.com/sirupsen/logrus"
)

const notificationTimeout = 10 * time.Second

// registerNotificationHandlers alerts the operator about foreclosures and
// about remittances that could not be delivered.
func (s *service) registerNotificationHandlers() {
	s.repoManager.Events().RegisterEventsHandler(
		domain.AssetTopic, func(events []domain.Event) {
			for _, event := range events {
				e, ok := event.(domain.Foreclosed)
				if !ok {
					continue
				}
				s.notify(fmt.Sprintf(
					"asset %s foreclosed, previous owner %s", e.Id, e.PreviousOwner,
				))
			}
		},
	)

	s.repoManager.Events().RegisterEventsHandler(
		domain.RemittanceTopic, func(events []domain.Event) {
			for _, event := range events {
				e, ok := event.(domain.RemittanceEscrowed)
				if !ok {
					continue
				}
				s.notify(fmt.Sprintf(
					"remittance of %s to %s (%s) failed, outstanding balance is now %s",
					e.Amount.Dec(), e.Recipient, e.Trigger, e.Balance.Dec(),
				))
			}
		},
	)
}

func (s *service) notify(message string) {
	ctx, cancel := context.WithTimeout(context.Background(), notificationTimeout)
	defer cancel()

	if err := s.notifier.Notify(ctx, s.notifyTo, message); err != nil {
		log.WithError(err).Warn("failed to send notification")
	}
}

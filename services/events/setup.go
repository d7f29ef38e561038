package events

import (
	"fmt"

	"github.com/oneclickdz/ocpay-reconciler/config"
	"github.com/oneclickdz/ocpay-reconciler/services"
	"github.com/oneclickdz/ocpay-reconciler/services/email"
	"github.com/oneclickdz/ocpay-reconciler/utils/logger"
)

// NewDispatcherFromConfig wires the sinks that have configuration. Kafka needs brokers,
// email needs an API key and Slack needs a webhook URL.
func NewDispatcherFromConfig(notificationConf *config.NotificationConfiguration, slack *services.SlackService) (*Dispatcher, error) {
	var sinks []Sink

	if len(notificationConf.KafkaBrokers) > 0 {
		sinks = append(sinks, NewKafkaSink(NewKafkaWriter(notificationConf.KafkaBrokers, notificationConf.KafkaTopic)))
	}

	if notificationConf.EmailAPIKey != "" {
		emailService, err := email.NewEmailService(notificationConf)
		if err != nil {
			return nil, fmt.Errorf("email sink: %w", err)
		}
		sinks = append(sinks, NewEmailSink(emailService))
	}

	if slack != nil && slack.SlackWebhookURL != "" {
		sinks = append(sinks, NewSlackSink(slack))
	}

	dispatcher := NewDispatcher(sinks...)
	logger.WithFields(logger.Fields{
		"Sinks": fmt.Sprintf("%v", dispatcher.Sinks()),
	}).Infof("Events.Dispatcher")

	return dispatcher, nil
}

package panoptic

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/pkg/errors"
)

// NewEventBus creates the in process bus every module of an engine shares.
func NewEventBus(buffer int64) *gochannel.GoChannel {
	return gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer:            buffer,
			BlockPublishUntilSubscriberAck: false,
		},
		watermill.NewStdLogger(false, false),
	)
}

// PublishTask publishes task on topic.
func PublishTask(publisher message.Publisher, topic string, task *Task) error {
	data, err := task.Marshal()
	if err != nil {
		return err
	}
	msg := message.NewMessage(watermill.NewUUID(), data)
	if err := publisher.Publish(topic, msg); err != nil {
		return errors.Wrapf(err, "fail to publish task %s to %s", task.TaskId, topic)
	}
	return nil
}

// DecodeTask acks msg and decodes the task it carries.
func DecodeTask(msg *message.Message) (*Task, error) {
	msg.Ack()
	return UnmarshalTask(msg.Payload)
}

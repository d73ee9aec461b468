package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublish(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		key, _ := msg.Key.Encode()
		if string(key) != "42" {
			return errors.New("unexpected key " + string(key))
		}
		if msg.Topic != "chat.notifications" || len(msg.Headers) != 1 {
			return errors.New("unexpected topic or headers")
		}
		return nil
	})

	p := newWithSync(sp)
	err := p.Publish(context.Background(), "chat.notifications", "42", []byte(`{}`), map[string]string{"type": "NEW_MESSAGE"})
	require.NoError(t, err)
	require.NoError(t, p.Close())
}

func TestPublishFailure(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := newWithSync(sp)
	err := p.Publish(context.Background(), "t", "1", nil, nil)
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, p.Close())
}

func TestPublishCancelled(t *testing.T) {
	p := newWithSync(mocks.NewSyncProducer(t, nil))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Publish(ctx, "t", "1", nil, nil), context.Canceled)
	require.NoError(t, p.Close())
}

package email

import (
	"github.com/crucibleai/kernel/pkg/bus"
	"github.com/crucibleai/kernel/pkg/channels"
	"github.com/crucibleai/kernel/pkg/config"
)

func init() {
	channels.RegisterFactory("email", func(cfg *config.Config, b *bus.MessageBus) (channels.Channel, error) {
		return NewEmailChannel(cfg.Channels.Email, b)
	})
}

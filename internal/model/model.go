package model

import (
	"github.com/LeonardoBeccarini/smartdustbin/internal/model/entities"
	"github.com/LeonardoBeccarini/smartdustbin/internal/model/messages"
)

// Aliases for the types shared by the node components.

type (
	LidState = entities.LidState
	Bin      = entities.Bin
)

const (
	LidOpen   = entities.LidOpen
	LidClosed = entities.LidClosed

	TopicFillLevel = messages.TopicFillLevel
	TopicLidState  = messages.TopicLidState
)

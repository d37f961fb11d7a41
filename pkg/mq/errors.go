package mq

import "errors"

var ErrNotConnected = errors.New("MQ_NOT_CONNECTED")
var ErrPublishNacked = errors.New("MQ_PUBLISH_NACKED")

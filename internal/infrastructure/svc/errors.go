package svc

import "errors"

// ErrStorageInitFailed 错误：存储初始化失败
var ErrStorageInitFailed = errors.New("storage initialization failed")

// ErrRelayConnectFailed 错误：无法在 Relay 上注册消费者端口
var ErrRelayConnectFailed = errors.New("relay connect failed")

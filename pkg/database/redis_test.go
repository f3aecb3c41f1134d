package database

import (
	"context"
	"strconv"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedisClient_PingsServer(t *testing.T) {
	mr := miniredis.RunT(t)
	host, portStr, _ := strings.Cut(mr.Addr(), ":")
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	client, err := NewRedisClient(context.Background(), RedisConfig{Host: host, Port: port})
	require.NoError(t, err)
	defer client.Close()

	assert.NoError(t, RedisPinger{Client: client}.Ping(context.Background()))

	mr.Close()
	assert.Error(t, RedisPinger{Client: client}.Ping(context.Background()))
}

func TestNewRedisClient_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	host, portStr, _ := strings.Cut(mr.Addr(), ":")
	port, _ := strconv.Atoi(portStr)
	mr.Close()

	_, err := NewRedisClient(context.Background(), RedisConfig{Host: host, Port: port})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ping redis")
}

func TestRedisConfig_Addr(t *testing.T) {
	assert.Equal(t, "localhost:6379", DefaultRedisConfig().Addr())
}

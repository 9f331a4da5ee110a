package cache

import (
	"github.com/gomodule/redigo/redis"
)

func Get(key string, conn *redis.Conn) (string, error) {
	return redis.String((*conn).Do("GET", key))
}

func Set(key string, value interface{}, conn *redis.Conn) error {
	_, err := (*conn).Do("SET", key, value)
	return err
}

func Del(key string, conn *redis.Conn) error {
	_, err := (*conn).Do("DEL", key)
	return err
}

func Expire(key string, seconds int, conn *redis.Conn) error {
	_, err := (*conn).Do("EXPIRE", key, seconds)
	return err
}

func RPUSH(key string, values []interface{}, conn *redis.Conn) error {
	_, err := (*conn).Do("RPUSH", redis.Args{}.Add(key).AddFlat(values)...)
	return err
}

func LLEN(key string, conn *redis.Conn) (int, error) {
	return redis.Int((*conn).Do("LLEN", key))
}

func LGET(key string, conn *redis.Conn) ([]string, error) {
	length, err := LLEN(key, conn)
	if err != nil {
		return nil, err
	}
	return redis.Strings((*conn).Do("LRANGE", key, 0, length))
}

func LREM(key string, val string, conn *redis.Conn) error {
	_, err := (*conn).Do("LREM", key, 0, val)
	return err
}

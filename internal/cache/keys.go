package cache

// Схема ключей. Ключи query-кэша задаёт вызывающий ("<entity>:<id>",
// "<entity>:<param>:<value>"); служебные ключи пакета живут в
// неймспейсах ниже.
const (
	// tagKeyPrefix — множества ключей по тегу: tag:<tag>.
	tagKeyPrefix = "tag:"
	// rateKeyPrefix — окна rate limiter'а: ratelimit:<scope>.
	rateKeyPrefix = "ratelimit:"
	// sessionKeyPrefix — сессии по токену: session:<token>.
	sessionKeyPrefix = "session:"
	// userSessionsKeyPrefix — множества токенов пользователя:
	// sessions:user:<userId>.
	userSessionsKeyPrefix = "sessions:user:"
)

func tagKey(tag string) string {
	return tagKeyPrefix + tag
}

func rateKey(scope string) string {
	return rateKeyPrefix + scope
}

func sessionKey(token string) string {
	return sessionKeyPrefix + token
}

func userSessionsKey(userID string) string {
	return userSessionsKeyPrefix + userID
}

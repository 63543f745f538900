package kafka

import (
	"fmt"
	"sort"
	"strings"

	"github.com/darioristic/crmflow/internal/domain"
)

// Subject событий совпадает с Kafka topic: "<aggregateType>.<verb>".
// Wildcard-подписка "<aggregateType>.*" разворачивается по закрытому
// списку известных subject'ов, потому что consumer group принимает
// только явный список топиков. Реестр строится из зарегистрированных
// типов событий: новый тип достаточно добавить в доменный реестр
// payload'ов.
var subjectsByAggregate = buildSubjectRegistry()

func buildSubjectRegistry() map[domain.AggregateType][]string {
	registry := make(map[domain.AggregateType][]string)
	for _, eventType := range domain.KnownEventTypes() {
		prefix, _, ok := strings.Cut(eventType, ".")
		if !ok {
			continue
		}
		aggregate := domain.AggregateType(prefix)
		registry[aggregate] = append(registry[aggregate], eventType)
	}
	for _, subjects := range registry {
		sort.Strings(subjects)
	}
	return registry
}

// SubjectsFor возвращает все subject'ы агрегата.
func SubjectsFor(aggregateType domain.AggregateType) []string {
	subjects := subjectsByAggregate[aggregateType]
	result := make([]string, len(subjects))
	copy(result, subjects)
	return result
}

// ExpandPattern разворачивает subject-паттерн в список топиков.
// Поддерживаются точный subject ("offer.accepted") и wildcard по
// агрегату ("offer.*").
func ExpandPattern(pattern string) ([]string, error) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return nil, fmt.Errorf("empty subject pattern")
	}

	if suffix, ok := strings.CutSuffix(pattern, ".*"); ok {
		subjects := SubjectsFor(domain.AggregateType(suffix))
		if len(subjects) == 0 {
			return nil, fmt.Errorf("unknown aggregate type in pattern %q", pattern)
		}
		return subjects, nil
	}

	for _, subjects := range subjectsByAggregate {
		for _, subject := range subjects {
			if subject == pattern {
				return []string{pattern}, nil
			}
		}
	}
	return nil, fmt.Errorf("unknown subject %q", pattern)
}

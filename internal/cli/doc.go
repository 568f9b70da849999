// Package cli реализует операторский клиент jobcore: тонкий HTTP-клиент к
// C9 (client.go), табличный/JSON вывод (output.go) и группы команд cobra,
// смонтированные cmd/jobcore (jobs.go). CLI не импортирует internal/api —
// типы ответов дублируются здесь, ровно как у teacher-репозитория.
package cli

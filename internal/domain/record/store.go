package record

import "context"

// Store - контракт табличного хранилища ростера (Google Sheets, Postgres,
// in-memory для тестов). Адресация строк и колонок нуль-базовая с точки
// зрения движка; смещения заголовков и единичной индексации - забота адаптера.
type Store interface {
	// Headers возвращает упорядоченные имена колонок.
	Headers(ctx context.Context) ([]string, error)

	// FindByIdentity ищет строку по значению колонки (без учёта регистра).
	// ok == false означает, что строки нет - это не ошибка.
	FindByIdentity(ctx context.Context, column, value string) (rowIndex int, fields map[string]string, ok bool, err error)

	// Rows возвращает все строки в табличном порядке; индекс в срезе
	// совпадает с rowIndex для UpdateCell. Нужен пакетным обработчикам
	// (очередь писем, выгрузка продлений).
	Rows(ctx context.Context) ([]map[string]string, error)

	// UpdateCell записывает значение одной ячейки.
	UpdateCell(ctx context.Context, rowIndex, colIndex int, value string) error

	// AppendRow добавляет строку со значениями в порядке колонок.
	AppendRow(ctx context.Context, values []string) error
}

// tspbatch — пакетное решение TSP через пул воркер-процессов.
//
// Использование:
//
//	tspbatch [--config FILE] [--json] <command> [flags]
//
// Команды:
//
//	run     Решить набор данных через shared memory и пул воркеров
//	legacy  Решить набор данных внешним исполняемым solver'ом
//	report  Сохранённые отчёты
//	watch   События завершения batch'ей и runs
//	serve   HTTP API отчётов
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/shaiso/tspbatch/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cli.NewRootCmd(version).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		cancel()
		os.Exit(1)
	}
}

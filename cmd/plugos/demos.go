package main

import (
	"plugos/device/kbd"
	"plugos/kernel/hal/cmdline"
	"plugos/kernel/kfmt"
	"plugos/kernel/kmain"
	ksync "plugos/kernel/sync"
	"plugos/kernel/timer"
	"sort"
	"strings"
)

type demo struct {
	desc          string
	needsKeyboard bool

	// tasks builds a fresh set of task entry points for one boot.
	tasks func() []func()
}

var demos = map[string]demo{
	"pingpong": {
		desc:  "two tasks bounce a counter through a pair of semaphores",
		tasks: pingPong,
	},
	"sleepers": {
		desc:  "tasks sleep for different intervals and report the clock",
		tasks: sleepers,
	},
	"echo": {
		desc:          "echo keys typed on stdin; q powers off",
		needsKeyboard: true,
		tasks:         echo,
	},
}

func sortedDemoNames() []string {
	names := make([]string, 0, len(demos))
	for name := range demos {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func demoNames() string {
	return strings.Join(sortedDemoNames(), ", ")
}

// park blocks the calling task forever.
func park() {
	never := ksync.NewSemaphore[struct{}](ksync.NewQueue[struct{}](1))
	for {
		never.P()
	}
}

func pingPong() []func() {
	ping := ksync.NewSemaphore[uint64](ksync.NewQueue[uint64](1))
	pong := ksync.NewSemaphore[uint64](ksync.NewQueue[uint64](1))

	return []func(){
		func() {
			rounds, _ := cmdline.Uint("rounds", 8)
			for i := uint64(0); i < rounds; i++ {
				ping.V(i)
				n, _ := pong.P()
				kfmt.Printf("[ping] got %d back at %dns\n", n, timer.Now())
			}
			kmain.Shutdown()
		},
		func() {
			for {
				n, _ := ping.P()
				kfmt.Printf("[pong] returning %d\n", n)
				pong.V(n)
			}
		},
	}
}

func sleepers() []func() {
	const (
		workers = 3
		naps    = 4
	)
	done := ksync.NewSemaphore[int](ksync.NewQueue[int](workers))

	tasks := []func(){
		func() {
			for i := 0; i < workers; i++ {
				id, _ := done.P()
				kfmt.Printf("[sleepers] worker %d finished at %dns\n", id, timer.Now())
			}
			kmain.Shutdown()
		},
	}
	for id := 1; id <= workers; id++ {
		tasks = append(tasks, func() {
			nap := uint64(id) * 50_000_000
			for i := 0; i < naps; i++ {
				timer.Nanosleep(nap)
				kfmt.Printf("[sleepers] worker %d woke at %dns\n", id, timer.Now())
			}
			done.V(id)
			park()
		})
	}
	return tasks
}

func echo() []func() {
	return []func(){
		func() {
			kfmt.Printf("[echo] type away, q powers off\n")
			for {
				switch k := kbd.ReadKey(); k {
				case 'q', 0x03, 0x04:
					kfmt.Printf("\n")
					kmain.Shutdown()
				case '\r', '\n':
					kfmt.Printf("\n")
				default:
					kfmt.Printf("%c", k)
				}
			}
		},
	}
}

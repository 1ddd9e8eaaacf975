package capability

var allowedSyscalls = []string{
	"read", "write", "readv", "writev", "pread64", "lseek", "close",
	"dup", "dup3", "fcntl", "ioctl",
	"ppoll", "pselect6",
	"epoll_create1", "epoll_ctl", "epoll_pwait",

	"fstat", "newfstatat", "statx",
	"faccessat", "readlinkat", "getcwd", "getdents64",
	"fadvise64",

	"brk", "mmap", "munmap", "mprotect", "mremap", "madvise",

	"set_tid_address", "set_robust_list", "prlimit64", "getrlimit",
	"rt_sigaction", "rt_sigprocmask", "rt_sigreturn", "sigaltstack", "tgkill",
	"futex", "sched_yield", "sched_getaffinity", "getrandom", "uname", "sysinfo",
	"getpid", "gettid", "getppid", "getuid", "geteuid", "getgid", "getegid",
	"getresuid", "getresgid",

	"clock_gettime", "clock_getres", "clock_nanosleep", "nanosleep", "gettimeofday",

	"execve", "execveat",

	"exit", "exit_group",
}

var probedSyscalls = []string{"rseq"}

var readOnlyOpens = []openSyscall{{"openat", 2}}

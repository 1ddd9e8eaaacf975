package capability

var allowedSyscalls = []string{
	// io on inherited descriptors
	"read", "write", "readv", "writev", "pread64", "lseek", "close",
	"dup", "dup2", "dup3", "fcntl", "ioctl",
	"poll", "ppoll", "select", "pselect6",
	"epoll_create1", "epoll_ctl", "epoll_wait", "epoll_pwait",

	// read only file system access, open and openat are in readOnlyOpens
	"stat", "fstat", "lstat", "newfstatat", "statx",
	"access", "faccessat", "readlink", "readlinkat", "getcwd", "getdents64",
	"fadvise64",

	// memory
	"brk", "mmap", "munmap", "mprotect", "mremap", "madvise",

	// runtime
	"arch_prctl", "set_tid_address", "set_robust_list", "prlimit64", "getrlimit",
	"rt_sigaction", "rt_sigprocmask", "rt_sigreturn", "sigaltstack", "tgkill",
	"futex", "sched_yield", "sched_getaffinity", "getrandom", "uname", "sysinfo",
	"getpid", "gettid", "getppid", "getuid", "geteuid", "getgid", "getegid",
	"getresuid", "getresgid",

	// time
	"clock_gettime", "clock_getres", "clock_nanosleep", "nanosleep", "gettimeofday", "time",

	// the loader execs the artifact after the filter is loaded
	"execve", "execveat",

	"exit", "exit_group",
}

var probedSyscalls = []string{"rseq"}

// readOnlyOpens maps open style syscalls to the index of their flags argument
var readOnlyOpens = []openSyscall{{"open", 1}, {"openat", 2}}

package main

import "fmt"

func completionMain(args []string) {
	shell := "bash"
	if len(args) > 0 && args[0] != "" {
		shell = args[0]
	}
	script, err := completionScript(shell)
	if err != nil {
		log.Fatalf("%v", err)
	}
	fmt.Print(script)
}

func completionScript(shell string) (string, error) {
	switch shell {
	case "bash":
		return bashCompletion, nil
	case "zsh":
		return zshCompletion, nil
	default:
		return "", fmt.Errorf("unsupported shell: %s (use bash or zsh)", shell)
	}
}

const bashCompletion = `
_auditor_cli_completions()
{
    local cur prev
    COMPREPLY=()
    cur="${COMP_WORDS[COMP_CWORD]}"
    prev="${COMP_WORDS[COMP_CWORD-1]}"

    if [[ ${COMP_CWORD} -eq 1 ]]; then
        COMPREPLY=( $(compgen -W "exec ping config completion --question --file --config --c --log-level --debug --copyable-output --no-animation" -- "$cur") )
        return 0
    fi

    case "${COMP_WORDS[1]}" in
        completion)
            COMPREPLY=( $(compgen -W "bash zsh" -- "$cur") )
            return 0
            ;;
        config)
            COMPREPLY=( $(compgen -W "show set --config" -- "$cur") )
            return 0
            ;;
        exec)
            COMPREPLY=( $(compgen -W "--question --q --file --f --json --idle --timeout --config --c" -- "$cur") )
            ;;
        ping)
            COMPREPLY=( $(compgen -W "--service-url --timeout --config --c" -- "$cur") )
            ;;
        *)
            COMPREPLY=( $(compgen -W "--question --q --file --f --config --c --copyable-output --no-animation" -- "$cur") )
            ;;
    esac
}
complete -F _auditor_cli_completions auditor-cli
`

const zshCompletion = `
#compdef auditor-cli
_auditor_cli() {
    local -a subcmds
    subcmds=('exec:submit one analysis without the panel' 'ping:check the analyze service and stream' 'config:show or update the config file' 'completion:print shell completions')
    if (( CURRENT == 2 )); then
        _describe 'command' subcmds
        return
    fi
    case "$words[2]" in
        completion)
            _values 'shell' bash zsh
            ;;
        config)
            _values 'action' show set
            ;;
        exec)
            _arguments \
                '--question[Question to ask about the contract]' \
                '--file[Solidity source file, or - for stdin]' \
                '--json[Emit JSON lines]' \
                '--idle[Exit after this long without new log lines]' \
                '--timeout[Overall deadline in seconds]' \
                '--config[Path to config file]' \
                '--c[Config key=value override]'
            ;;
        ping)
            _arguments \
                '--service-url[Override service URL]' \
                '--timeout[Timeout seconds]' \
                '--config[Path to config file]' \
                '--c[Config key=value override]'
            ;;
        *)
            _arguments \
                '--question[Prefill the question field]' \
                '--file[Prefill the source field]' \
                '--config[Path to config file]' \
                '--c[Config key=value override]' \
                '--copyable-output[Disable alt screen]' \
                '--no-animation[Static status indicator]'
            ;;
    esac
}
_auditor_cli "$@"
`

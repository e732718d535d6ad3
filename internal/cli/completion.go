// Package cli provides shell completion and terminal output helpers for bankctl.
package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// BashCompletion is the bash completion script for bankctl.
const BashCompletion = `#!/bin/bash
# Bash completion for bankctl

_bankctl_completion() {
    local cur prev
    COMPREPLY=()
    cur="${COMP_WORDS[COMP_CWORD]}"
    prev="${COMP_WORDS[COMP_CWORD-1]}"

    local commands="accounts transactions transfer history payees pending sync upload completion help"
    local accounts_cmds="list get rename delete"
    local payees_cmds="list add delete"
    local global_flags="-config -api-url -token -storage -log-level -log-format -query -offline"

    case "${prev}" in
        accounts)
            COMPREPLY=( $(compgen -W "${accounts_cmds}" -- ${cur}) )
            return 0
            ;;
        payees)
            COMPREPLY=( $(compgen -W "${payees_cmds}" -- ${cur}) )
            return 0
            ;;
        completion)
            COMPREPLY=( $(compgen -W "bash zsh fish" -- ${cur}) )
            return 0
            ;;
        -config|upload)
            COMPREPLY=( $(compgen -f -- ${cur}) )
            return 0
            ;;
        -storage)
            COMPREPLY=( $(compgen -W "memory redis postgres" -- ${cur}) )
            return 0
            ;;
        -log-level)
            COMPREPLY=( $(compgen -W "debug info warn error" -- ${cur}) )
            return 0
            ;;
        -log-format)
            COMPREPLY=( $(compgen -W "json text" -- ${cur}) )
            return 0
            ;;
    esac

    if [[ ${cur} == -* ]]; then
        COMPREPLY=( $(compgen -W "${global_flags}" -- ${cur}) )
        return 0
    fi

    COMPREPLY=( $(compgen -W "${commands}" -- ${cur}) )
    return 0
}

complete -F _bankctl_completion bankctl
`

// ZshCompletion is the zsh completion script for bankctl.
const ZshCompletion = `#compdef bankctl

_bankctl() {
    local -a commands
    commands=(
        'accounts:List, show, rename or delete accounts'
        'transactions:Show transactions for an account'
        'transfer:Send money from an account'
        'history:Show transfer history'
        'payees:Manage frequent payees'
        'pending:Show queued offline operations'
        'sync:Replay queued offline operations'
        'upload:Upload a statement document'
        'completion:Generate shell completion script'
        'help:Show help information'
    )

    _arguments -C \
        '-config[Configuration file path]:file:_files' \
        '-api-url[Bank API base URL]:url:' \
        '-token[Bearer token]:token:' \
        '-storage[Local cache backend]:backend:(memory redis postgres)' \
        '-log-level[Log level]:level:(debug info warn error)' \
        '-log-format[Log format]:format:(json text)' \
        '-query[gjson path applied to the output]:path:' \
        '-offline[Serve from the local cache only]' \
        '1: :->command' \
        '*:: :->args'

    case $state in
        command)
            _describe 'command' commands
            ;;
        args)
            case $words[1] in
                accounts)
                    _values 'subcommand' list get rename delete
                    ;;
                payees)
                    _values 'subcommand' list add delete
                    ;;
                completion)
                    _values 'shell' bash zsh fish
                    ;;
                upload)
                    _files
                    ;;
            esac
            ;;
    esac
}

_bankctl
`

// FishCompletion is the fish completion script for bankctl.
const FishCompletion = `# Fish completion for bankctl

complete -c bankctl -f -n "__fish_use_subcommand" -a "accounts" -d "List, show, rename or delete accounts"
complete -c bankctl -f -n "__fish_use_subcommand" -a "transactions" -d "Show transactions for an account"
complete -c bankctl -f -n "__fish_use_subcommand" -a "transfer" -d "Send money from an account"
complete -c bankctl -f -n "__fish_use_subcommand" -a "history" -d "Show transfer history"
complete -c bankctl -f -n "__fish_use_subcommand" -a "payees" -d "Manage frequent payees"
complete -c bankctl -f -n "__fish_use_subcommand" -a "pending" -d "Show queued offline operations"
complete -c bankctl -f -n "__fish_use_subcommand" -a "sync" -d "Replay queued offline operations"
complete -c bankctl -n "__fish_use_subcommand" -a "upload" -d "Upload a statement document"
complete -c bankctl -f -n "__fish_use_subcommand" -a "completion" -d "Generate shell completion script"

complete -c bankctl -f -n "__fish_seen_subcommand_from accounts" -a "list get rename delete"
complete -c bankctl -f -n "__fish_seen_subcommand_from payees" -a "list add delete"
complete -c bankctl -f -n "__fish_seen_subcommand_from completion" -a "bash zsh fish"

complete -c bankctl -o config -r -d "Configuration file path"
complete -c bankctl -o api-url -x -d "Bank API base URL"
complete -c bankctl -o token -x -d "Bearer token"
complete -c bankctl -o storage -x -a "memory redis postgres" -d "Local cache backend"
complete -c bankctl -o log-level -x -a "debug info warn error" -d "Log level"
complete -c bankctl -o log-format -x -a "json text" -d "Log format"
complete -c bankctl -o query -x -d "gjson path applied to the output"
complete -c bankctl -o offline -d "Serve from the local cache only"
`

func script(shell string) (string, error) {
	switch shell {
	case "bash":
		return BashCompletion, nil
	case "zsh":
		return ZshCompletion, nil
	case "fish":
		return FishCompletion, nil
	default:
		return "", fmt.Errorf("unsupported shell: %s (supported: bash, zsh, fish)", shell)
	}
}

// GenerateCompletion writes the completion script for shell to w.
func GenerateCompletion(w io.Writer, shell string) error {
	s, err := script(shell)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, s)
	return err
}

// InstallPath returns where InstallCompletion writes the script for shell.
func InstallPath(homeDir, shell string) (string, error) {
	switch shell {
	case "bash":
		return filepath.Join(homeDir, ".bash_completion.d", "bankctl"), nil
	case "zsh":
		return filepath.Join(homeDir, ".zsh", "completion", "_bankctl"), nil
	case "fish":
		return filepath.Join(homeDir, ".config", "fish", "completions", "bankctl.fish"), nil
	default:
		return "", fmt.Errorf("unsupported shell: %s (supported: bash, zsh, fish)", shell)
	}
}

// InstallCompletion writes the completion script under homeDir and returns
// the path written. An empty homeDir means the current user's home.
func InstallCompletion(homeDir, shell string) (string, error) {
	if homeDir == "" {
		dir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		homeDir = dir
	}
	s, err := script(shell)
	if err != nil {
		return "", err
	}
	installPath, err := InstallPath(homeDir, shell)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(installPath), 0o755); err != nil {
		return "", fmt.Errorf("failed to create completion directory: %w", err)
	}
	if err := os.WriteFile(installPath, []byte(s), 0o644); err != nil {
		return "", fmt.Errorf("failed to write completion script: %w", err)
	}
	return installPath, nil
}

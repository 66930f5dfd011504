package dimacs

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
)

// Problem is a CNF formula read from DIMACS
// see: https://logic.pdmi.ras.ru/~basolver/dimacs.html
type Problem struct {
	Variables int
	Clauses   [][]int
}

var (
	commentLine = regexp.MustCompile(`^c(\s.*)?$`)
	headerLine  = regexp.MustCompile(`^p\s+cnf\s+\d+\s+\d+$`)
	clauseLine  = regexp.MustCompile(`^(-?\d+\s+)*0$`)
)

// Parse reads a DIMACS CNF problem. Every declared variable must appear
// in some clause and the clause count must match the header.
func Parse(r io.Reader) (*Problem, error) {
	scanner := bufio.NewScanner(r)
	var (
		p        *Problem
		declared int
		seen     = map[int]struct{}{}
	)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "" || commentLine.MatchString(line):
			continue
		case headerLine.MatchString(line):
			if p != nil {
				return nil, fmt.Errorf("duplicate header: %s", line)
			}
			fields := strings.Fields(line)
			variables, err := strconv.Atoi(fields[2])
			if err != nil {
				return nil, fmt.Errorf("invalid number (%s) in statement (%s)", fields[2], line)
			}
			declared, err = strconv.Atoi(fields[3])
			if err != nil {
				return nil, fmt.Errorf("invalid number (%s) in statement (%s)", fields[3], line)
			}
			p = &Problem{Variables: variables, Clauses: make([][]int, 0, declared)}
		case clauseLine.MatchString(line):
			if p == nil {
				return nil, errors.New("invalid dimacs format: missing header 'p cnf <variables> <clauses>'")
			}
			fields := strings.Fields(line)
			clause, err := parseClause(fields[:len(fields)-1], p.Variables)
			if err != nil {
				return nil, fmt.Errorf("invalid clause (%s): %w", line, err)
			}
			for _, lit := range clause {
				if lit < 0 {
					lit = -lit
				}
				seen[lit] = struct{}{}
			}
			p.Clauses = append(p.Clauses, clause)
		default:
			return nil, fmt.Errorf("invalid dimacs command: %s", line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading dimacs data: %w", err)
	}

	if p == nil || p.Variables == 0 || len(p.Clauses) == 0 {
		return nil, errors.New("invalid format: no variables or clauses found")
	}
	if len(p.Clauses) != declared {
		return nil, errors.New("invalid format: number of clauses in header differ from the total number of clauses")
	}
	if len(seen) != p.Variables {
		return nil, errors.New("invalid format: number of variables in header differ from the total number of unique variables found in clauses")
	}
	return p, nil
}

func parseClause(fields []string, variables int) ([]int, error) {
	if len(fields) == 0 {
		return nil, errors.New("empty clause")
	}
	clause := make([]int, 0, len(fields))
	for _, f := range fields {
		lit, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("%s is not a number", f)
		}
		if lit == 0 {
			return nil, errors.New("0 is not a valid variable")
		}
		if lit > variables || lit < -variables {
			return nil, fmt.Errorf("%s is not a valid variable", f)
		}
		clause = append(clause, lit)
	}
	return clause, nil
}

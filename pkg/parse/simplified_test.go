// Copyright 2026 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package parse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/ckb/pkg/model"
)

// unitByName finds a unit by kind and name, failing the test when absent.
func unitByName(t *testing.T, units []model.CodeUnit, kind model.UnitKind, name string) model.CodeUnit {
	t.Helper()
	for _, u := range units {
		if u.Kind == kind && u.Name == name {
			return u
		}
	}
	t.Fatalf("no %s unit named %q", kind, name)
	return model.CodeUnit{}
}

func TestSimplifiedParser_Go(t *testing.T) {
	source := `package mylib

import (
	"fmt"
	"strings"
)

type Greeter struct {
	Name string
}

type Speaker interface {
	Speak() string
}

func NewGreeter(name string) *Greeter {
	return &Greeter{Name: name}
}

func (g *Greeter) Greet() string {
	return fmt.Sprintf("hi %s", strings.ToUpper(g.Name))
}
`
	p := NewSimplifiedParser(nil)
	units, err := p.ParseFile(FileInfo{Path: "mylib/greeter.go", Language: "go"}, []byte(source))
	require.NoError(t, err)

	module := units[0]
	assert.Equal(t, model.UnitKindModule, module.Kind)
	assert.Equal(t, "mylib", module.Name)
	assert.Equal(t, "fmt,strings", module.Metadata["imports"])

	greeter := unitByName(t, units, model.UnitKindStruct, "Greeter")
	assert.Equal(t, 8, greeter.StartLine)
	assert.Equal(t, 10, greeter.EndLine)

	unitByName(t, units, model.UnitKindInterface, "Speaker")
	unitByName(t, units, model.UnitKindFunction, "NewGreeter")

	greet := unitByName(t, units, model.UnitKindMethod, "Greet")
	assert.Equal(t, "Greeter", greet.DeclaringClass())
	assert.Contains(t, greet.Code, "fmt.Sprintf")
}

func TestSimplifiedParser_Python(t *testing.T) {
	source := `import os
from typing import List

class Animal:
    def speak(self):
        return ""

class Dog(Animal):
    def speak(self):
        return "woof"

def main():
    print(Dog().speak())
`
	p := NewSimplifiedParser(nil)
	units, err := p.ParseFile(FileInfo{Path: "zoo/dog.py", Language: "python"}, []byte(source))
	require.NoError(t, err)

	module := units[0]
	assert.Equal(t, "dog", module.Name)
	assert.Equal(t, "os,typing", module.Metadata["imports"])

	unitByName(t, units, model.UnitKindClass, "Animal")

	dog := unitByName(t, units, model.UnitKindClass, "Dog")
	assert.Equal(t, "Animal", dog.Metadata["superclass"])

	// Both speak methods exist, attributed to their classes.
	speaks := 0
	for _, u := range units {
		if u.Kind == model.UnitKindMethod && u.Name == "speak" {
			speaks++
			assert.Contains(t, []string{"Animal", "Dog"}, u.DeclaringClass())
		}
	}
	assert.Equal(t, 2, speaks)

	unitByName(t, units, model.UnitKindFunction, "main")
}

func TestSimplifiedParser_TypeScript(t *testing.T) {
	source := `import { api } from "./api";

export interface Store {
  get(key: string): string;
}

export class MemoryStore implements Store {
  get(key: string) {
    return this.data[key];
  }
}

export function helper() {
  return 1;
}

const fetcher = async (url) => {
  return api.get(url);
};
`
	p := NewSimplifiedParser(nil)
	units, err := p.ParseFile(FileInfo{Path: "src/store.ts", Language: "typescript"}, []byte(source))
	require.NoError(t, err)

	assert.Equal(t, "./api", units[0].Metadata["imports"])

	unitByName(t, units, model.UnitKindInterface, "Store")

	store := unitByName(t, units, model.UnitKindClass, "MemoryStore")
	assert.Equal(t, "Store", store.Metadata["interfaces"])

	get := unitByName(t, units, model.UnitKindMethod, "get")
	assert.Equal(t, "MemoryStore", get.DeclaringClass())

	unitByName(t, units, model.UnitKindFunction, "helper")
	unitByName(t, units, model.UnitKindFunction, "fetcher")
}

func TestSimplifiedParser_Java(t *testing.T) {
	source := `package com.example;

import java.util.List;

public class Dog extends Animal implements Speaker {
    private String name;

    public String speak() {
        return "woof";
    }
}
`
	p := NewSimplifiedParser(nil)
	units, err := p.ParseFile(FileInfo{Path: "src/Dog.java", Language: "java"}, []byte(source))
	require.NoError(t, err)

	module := units[0]
	assert.Equal(t, "com.example", module.Metadata["package"])
	assert.Equal(t, "java.util.List", module.Metadata["imports"])

	dog := unitByName(t, units, model.UnitKindClass, "Dog")
	assert.Equal(t, "Animal", dog.Metadata["superclass"])
	assert.Equal(t, "Speaker", dog.Metadata["interfaces"])

	speak := unitByName(t, units, model.UnitKindMethod, "speak")
	assert.Equal(t, "Dog", speak.DeclaringClass())
}

func TestSimplifiedParser_Truncation(t *testing.T) {
	p := NewSimplifiedParser(nil)
	p.SetMaxCodeTextSize(32)

	source := "func big() {\n\t// " + string(make([]byte, 200)) + "\n}\n"
	units, err := p.ParseFile(FileInfo{Path: "big.go", Language: "go"}, []byte("package x\n\n"+source))
	require.NoError(t, err)

	big := unitByName(t, units, model.UnitKindFunction, "big")
	assert.LessOrEqual(t, len(big.Code), 32)
	assert.Equal(t, 1, p.TruncatedCount())

	p.ResetTruncatedCount()
	assert.Equal(t, 0, p.TruncatedCount())
}

func TestUnitID_Deterministic(t *testing.T) {
	a := UnitID("src/a.go", model.UnitKindFunction, "Foo", 10)
	b := UnitID("./src/a.go", model.UnitKindFunction, "Foo", 10)
	assert.Equal(t, a, b, "leading ./ must not change the ID")

	c := UnitID("src/a.go", model.UnitKindFunction, "Foo", 11)
	assert.NotEqual(t, a, c)
}
